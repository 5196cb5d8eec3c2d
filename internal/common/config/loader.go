// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like GENAI_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored when absent.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up directories looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "jobhunter-workers"
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}
	if cfg.Persona.ScoreFloor == 0 {
		cfg.Persona.ScoreFloor = 75
	}
	if len(cfg.Persona.Weights) == 0 {
		cfg.Persona.Weights = map[string]int{
			"role_fit":         35,
			"stage_fit":        25,
			"compensation_fit": 20,
			"autonomy_fit":     20,
		}
	}
	if cfg.Discovery.RegistryPath == "" {
		cfg.Discovery.RegistryPath = "configs/sources.yaml"
	}
	if cfg.Discovery.CacheTTL == 0 {
		cfg.Discovery.CacheTTL = 6 * time.Hour
	}
	if cfg.Discovery.FetchTimeout == 0 {
		cfg.Discovery.FetchTimeout = 30 * time.Second
	}
	if cfg.Enrichment.Timeout == 0 {
		cfg.Enrichment.Timeout = 20 * time.Second
	}
	if cfg.Enrichment.CacheTTL == 0 {
		cfg.Enrichment.CacheTTL = 72 * time.Hour
	}
	if cfg.GenAI.Timeout == 0 {
		cfg.GenAI.Timeout = 45 * time.Second
	}
	if cfg.GenAI.MaxTokens == 0 {
		cfg.GenAI.MaxTokens = 600
	}
	if cfg.Orchestrator.Interval == 0 {
		cfg.Orchestrator.Interval = 4 * time.Hour
	}
	if cfg.Orchestrator.WorkerCount == 0 {
		cfg.Orchestrator.WorkerCount = 4
	}
	if cfg.Orchestrator.MaxFollowUps == 0 {
		cfg.Orchestrator.MaxFollowUps = 3
	}
	if len(cfg.Orchestrator.FollowUpLadder) == 0 {
		cfg.Orchestrator.FollowUpLadder = []time.Duration{
			72 * time.Hour,
			168 * time.Hour,
			336 * time.Hour,
		}
	}
	if cfg.Orchestrator.OutboxDir == "" {
		cfg.Orchestrator.OutboxDir = "outbox"
	}
	if cfg.Orchestrator.ArchiveAfter == 0 {
		cfg.Orchestrator.ArchiveAfter = 30 * 24 * time.Hour
	}
	if cfg.Orchestrator.GlobalCallBudget == 0 {
		cfg.Orchestrator.GlobalCallBudget = 200
	}
	if cfg.Orchestrator.GlobalCallRefill == 0 {
		cfg.Orchestrator.GlobalCallRefill = time.Hour
	}
	if cfg.Intake.ListenAddress == "" {
		cfg.Intake.ListenAddress = ":8087"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	for name, ch := range cfg.Channels {
		if ch.BurstSize == 0 {
			ch.BurstSize = 5
		}
		if ch.RefillInterval == 0 {
			ch.RefillInterval = time.Hour
		}
		if ch.AcquireTimeout == 0 {
			ch.AcquireTimeout = 30 * time.Second
		}
		cfg.Channels[name] = ch
	}
}

// overrideEmptyConfig backfills secrets from plain env vars when the YAML left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.GenAI.APIKey == "" {
		if val := os.Getenv("GENAI_API_KEY"); val != "" {
			cfg.GenAI.APIKey = val
		}
	}
	if cfg.Enrichment.APIKey == "" {
		if val := os.Getenv("ENRICHMENT_API_KEY"); val != "" {
			cfg.Enrichment.APIKey = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("POSTGRES_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
}

// Validate rejects configurations the pipeline cannot run with.
func Validate(cfg *Config) error {
	sum := 0
	for _, w := range cfg.Persona.Weights {
		if w < 0 {
			return fmt.Errorf("persona weight must be non-negative, got %d", w)
		}
		sum += w
	}
	if sum != 100 {
		return fmt.Errorf("persona rubric weights must sum to 100, got %d", sum)
	}
	if cfg.Persona.ScoreFloor < 0 || cfg.Persona.ScoreFloor > 100 {
		return fmt.Errorf("score floor must be within 0-100, got %d", cfg.Persona.ScoreFloor)
	}
	if cfg.Orchestrator.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	for name, ch := range cfg.Channels {
		if ch.BurstSize < 1 {
			return fmt.Errorf("channel %s burst size must be at least 1", name)
		}
	}
	return nil
}
