package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerEmbedder guards a remote Embedder with a circuit breaker.
type BreakerEmbedder struct {
	inner Embedder
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerEmbedder trips after failures consecutive errors and probes
// again after cooldown.
func NewBreakerEmbedder(inner Embedder, failures uint32, cooldown time.Duration) *BreakerEmbedder {
	if failures == 0 {
		failures = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &BreakerEmbedder{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "embedder:" + inner.Model(),
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("embedder breaker state change")
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
}

func (b *BreakerEmbedder) Model() string   { return b.inner.Model() }
func (b *BreakerEmbedder) Dimensions() int { return b.inner.Dimensions() }

// State reports the breaker state.
func (b *BreakerEmbedder) State() gobreaker.State { return b.cb.State() }

// Embed calls the wrapped embedder unless the breaker is open.
func (b *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return out.([]float64), nil
}
