// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig                `mapstructure:"app"`
	Database     DatabaseConfig           `mapstructure:"database"`
	Persona      PersonaConfig            `mapstructure:"persona"`
	Discovery    DiscoveryConfig          `mapstructure:"discovery"`
	Enrichment   EnrichmentConfig         `mapstructure:"enrichment"`
	GenAI        GenAIConfig              `mapstructure:"genai"`
	Channels     map[string]ChannelConfig `mapstructure:"channels"`
	Orchestrator OrchestratorConfig       `mapstructure:"orchestrator"`
	Intake       IntakeConfig             `mapstructure:"intake"`
	Logging      LoggingConfig            `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PersonaConfig is the declared profile the scoring rubric runs against.
type PersonaConfig struct {
	// Rubric weights per dimension; must sum to 100.
	Weights map[string]int `mapstructure:"weights"`
	// Opportunities scoring below the floor are archived without outreach.
	ScoreFloor int `mapstructure:"score_floor"`

	// Declared criteria per dimension. Empty criteria score neutral.
	RoleKeywords   []string `mapstructure:"role_keywords"`
	StageKeywords  []string `mapstructure:"stage_keywords"`
	CompKeywords   []string `mapstructure:"comp_keywords"`
	AutonomyCues   []string `mapstructure:"autonomy_cues"`
	ExcludeRegions []string `mapstructure:"exclude_regions"`

	// Fixed artifacts injected into every generated message.
	CredibilityLink string `mapstructure:"credibility_link"`
	ValueStatement  string `mapstructure:"value_statement"`
	TargetRole      string `mapstructure:"target_role"`
	SenderName      string `mapstructure:"sender_name"`
}

type DiscoveryConfig struct {
	RegistryPath string        `mapstructure:"registry_path"`
	Query        string        `mapstructure:"query"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type EnrichmentConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type GenAIConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
}

// ChannelConfig holds the per-channel rate limit and send integration settings.
type ChannelConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BurstSize      int           `mapstructure:"burst_size"`
	RefillInterval time.Duration `mapstructure:"refill_interval"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	LiveSend       bool          `mapstructure:"live_send"`

	// Email-only settings (SES).
	AWSRegion string `mapstructure:"aws_region"`
	FromEmail string `mapstructure:"from_email"`
}

type OrchestratorConfig struct {
	Interval       time.Duration   `mapstructure:"interval"`
	WorkerCount    int             `mapstructure:"worker_count"`
	MaxFollowUps   int             `mapstructure:"max_follow_ups"`
	FollowUpLadder []time.Duration `mapstructure:"follow_up_ladder"`
	OutboxDir      string          `mapstructure:"outbox_dir"`
	ArchiveAfter   time.Duration   `mapstructure:"archive_after"`

	// Shared budget for paid upstream calls (enrichment lookups and
	// GenAI completions) per refill window, across all channels.
	GlobalCallBudget int           `mapstructure:"global_call_budget"`
	GlobalCallRefill time.Duration `mapstructure:"global_call_refill"`
}

type IntakeConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
