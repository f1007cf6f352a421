package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all constellation configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	LLM       LLMConfig       `toml:"llm"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Engine    EngineConfig    `toml:"engine"`
	Log       LogConfig       `toml:"log"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LLMConfig selects the model used for entity extraction.
// An empty provider disables the LLM extractor; the heuristic one is used.
type LLMConfig struct {
	Provider     string `toml:"provider"` // "", "claude-cli", "anthropic", "ollama"
	Model        string `toml:"model"`
	OllamaURL    string `toml:"ollama_url"`
	OllamaModel  string `toml:"ollama_model"`
	AnthropicKey string `toml:"anthropic_key"`
}

type EmbeddingConfig struct {
	Provider   string `toml:"provider"` // "auto", "ollama", "tfidf"
	OllamaURL  string `toml:"ollama_url"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	MaxTerms   int    `toml:"max_terms"` // tfidf vocabulary size
}

// EngineConfig tunes the relationship engine. Zero values fall back to defaults.
type EngineConfig struct {
	MinStrength     float64 `toml:"min_strength"`     // edges at or below are discarded
	ClusterStrength float64 `toml:"cluster_strength"` // edges at or below do not cluster
	StrongStrength  float64 `toml:"strong_strength"`  // reported as strong connections
	Workers         int     `toml:"workers"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Embedding: EmbeddingConfig{
			Provider:   "auto",
			OllamaURL:  "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			MaxTerms:   512,
		},
		Engine: EngineConfig{
			MinStrength:     0.3,
			ClusterStrength: 0.5,
			StrongStrength:  0.7,
			Workers:         4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a TOML file on top of the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides config values from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CONSTELLATION_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("CONSTELLATION_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("CONSTELLATION_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("CONSTELLATION_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.Embedding.OllamaURL = v
		c.LLM.OllamaURL = v
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.Provider = "anthropic"
		c.LLM.AnthropicKey = key
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
