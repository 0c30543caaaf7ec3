package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/customeros/mailstack/internal/logger"
	"github.com/customeros/mailstack/internal/tracing"
)

// Config is the fully parsed process configuration, handed into the
// Orchestrator at construction; nothing downstream reads the environment
// directly.
type Config struct {
	AppConfig      *AppConfig
	Cache          *CacheConfig
	Security       *SecurityConfig
	Pool           *PoolConfig
	RateLimit      *RateLimitConfig
	Outbox         *OutboxConfig
	Sync           *SyncConfig
	MCP            *MCPConfig
	Jobs           *JobsConfig
	DefaultAccount *DefaultIMAPConfig
}

func InitConfig() (*Config, error) {
	cfg := &Config{
		AppConfig: &AppConfig{
			Logger:  &logger.Config{},
			Tracing: &tracing.JaegerConfig{},
		},
		Cache:          &CacheConfig{},
		Security:       &SecurityConfig{},
		Pool:           &PoolConfig{},
		RateLimit:      &RateLimitConfig{},
		Outbox:         &OutboxConfig{},
		Sync:           &SyncConfig{},
		MCP:            &MCPConfig{},
		Jobs:           &JobsConfig{},
		DefaultAccount: &DefaultIMAPConfig{},
	}

	if err := godotenv.Load(); err != nil {
		log.Print("unable to load .env file, continuing with process environment")
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
