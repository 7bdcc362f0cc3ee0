package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type APIConfig struct {
	Addr          string        `env:"SQ_API_ADDR" envDefault:":8080"`
	Port          string        `env:"PORT"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	RewardsURL    string        `env:"SQ_REWARDS_URL"`
	RewardsToken  string        `env:"SQ_REWARDS_TOKEN"`
	DefaultRounds int           `env:"SQ_DEFAULT_ROUNDS" envDefault:"10"`
	MaxRounds     int           `env:"SQ_MAX_ROUNDS" envDefault:"50"`
	SessionTTL    time.Duration `env:"SQ_SESSION_TTL" envDefault:"2h"`
	JanitorEvery  time.Duration `env:"SQ_JANITOR_EVERY" envDefault:"5m"`
	SuccessReward int64         `env:"SQ_SUCCESS_REWARD" envDefault:"4000"`
	LogLevel      string        `env:"SQ_LOG_LEVEL" envDefault:"info"`
	LogPretty     bool          `env:"SQ_LOG_PRETTY" envDefault:"false"`
	CORSOrigins   []string      `env:"SQ_CORS_ORIGINS" envDefault:"*" envSeparator:","`
}

type CLIConfig struct {
	APIBaseURL string `env:"SQ_API_BASE_URL" envDefault:"http://localhost:8080"`
	LogLevel   string `env:"SQ_LOG_LEVEL" envDefault:"warn"`
}

// LoadAPIFromEnv reads .env if present, then the process environment.
// PORT, when set, wins over SQ_API_ADDR.
func LoadAPIFromEnv() (APIConfig, error) {
	_ = godotenv.Load()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if port := strings.TrimSpace(cfg.Port); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.RewardsURL = strings.TrimRight(strings.TrimSpace(cfg.RewardsURL), "/")
	cfg.RewardsToken = strings.TrimSpace(cfg.RewardsToken)
	cfg.CORSOrigins = cleanList(cfg.CORSOrigins)
	return cfg, cfg.Validate()
}

func (c APIConfig) Validate() error {
	if c.DefaultRounds <= 0 {
		return fmt.Errorf("SQ_DEFAULT_ROUNDS must be positive")
	}
	if c.MaxRounds < c.DefaultRounds {
		return fmt.Errorf("SQ_MAX_ROUNDS (%d) must be at least SQ_DEFAULT_ROUNDS (%d)", c.MaxRounds, c.DefaultRounds)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SQ_SESSION_TTL must be positive")
	}
	if c.JanitorEvery <= 0 {
		return fmt.Errorf("SQ_JANITOR_EVERY must be positive")
	}
	if c.SuccessReward < 0 {
		return fmt.Errorf("SQ_SUCCESS_REWARD must not be negative")
	}
	return nil
}

func LoadCLIFromEnv() (CLIConfig, error) {
	_ = godotenv.Load()

	var cfg CLIConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	return cfg, nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
