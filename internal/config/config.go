// Package config loads the process configuration from a YAML file, a
// local .env file, and environment variable overrides, using viper in
// the same load-once/bind-defaults/unmarshal shape used throughout the
// service stack this was adapted from.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig holds process-wide, non-domain settings.
type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
}

// AIConfig configures the LLM and embedding provider.
type AIConfig struct {
	GeminiAPIKey     string  `mapstructure:"gemini_api_key"`
	Model            string  `mapstructure:"model"`
	EmbeddingModel   string  `mapstructure:"embedding_model"`
	Timeout          string  `mapstructure:"timeout"`
	Temperature      float64 `mapstructure:"temperature"`
	MaxConcurrent    int     `mapstructure:"max_concurrent"` // LLM adapter rate-limit semaphore size
}

// ClusteringConfig configures the ingestion/clustering pipeline (spec §6).
type ClusteringConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	NeighborLimit       int     `mapstructure:"neighbor_limit"`
	JudgeNeighborCount  int     `mapstructure:"judge_neighbor_count"`
}

// SelectionConfig configures the article selector (spec §4.3, §6).
type SelectionConfig struct {
	FreshnessDays  int                `mapstructure:"freshness_days"`
	CoverageBoost  float64            `mapstructure:"coverage_boost"`
	DecayRate      map[string]float64 `mapstructure:"decay_rate"`
	MinImportance  float64            `mapstructure:"min_importance"`
	BackupLimit    int                `mapstructure:"backup_limit"`
}

// ScriptConfig configures the script orchestrator (spec §4.5, §6).
type ScriptConfig struct {
	WordsPerMinute int `mapstructure:"words_per_minute"`
	MaxSources     int `mapstructure:"max_sources"`
}

// TTSConfig configures the TTS fan-out and provider selection.
type TTSConfig struct {
	Provider      string `mapstructure:"provider"`
	APIKey        string `mapstructure:"api_key"`
	Voice         string `mapstructure:"voice"`
	BatchSize     int    `mapstructure:"batch_size"`
	CrossfadeMS   int    `mapstructure:"crossfade_ms"`
}

// AudioConfig configures the final audio export.
type AudioConfig struct {
	BitrateKbps int `mapstructure:"bitrate_kbps"`
}

// ObjectStoreConfig configures the artifact upload destination.
type ObjectStoreConfig struct {
	Provider string `mapstructure:"provider"` // "s3" or "local"
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	LocalDir string `mapstructure:"local_dir"`
}

// ServerConfig configures the episode-status HTTP surface.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// FeedConfig names one polled RSS/Atom source and the category hint
// applied to its articles when the clustering judge falls back (spec
// §4.1).
type FeedConfig struct {
	URL          string `mapstructure:"url"`
	Name         string `mapstructure:"name"`
	CategoryHint string `mapstructure:"category_hint"`
}

// IngestorConfig configures the feed-polling loop.
type IngestorConfig struct {
	PollInterval string `mapstructure:"poll_interval"`
	Concurrency  int    `mapstructure:"concurrency"`
}

// LoggingConfig configures the zerolog sink.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full process configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Database    DatabaseConfig    `mapstructure:"database"`
	AI          AIConfig          `mapstructure:"ai"`
	Clustering  ClusteringConfig  `mapstructure:"clustering"`
	Selection   SelectionConfig   `mapstructure:"selection"`
	Script      ScriptConfig      `mapstructure:"script"`
	TTS         TTSConfig         `mapstructure:"tts"`
	Audio       AudioConfig       `mapstructure:"audio"`
	ObjectStore ObjectStoreConfig `mapstructure:"objectstore"`
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Ingestor    IngestorConfig    `mapstructure:"ingestor"`
	Feeds       []FeedConfig      `mapstructure:"feeds"`
}

var global *Config

// Load reads configuration from configFile (or episodes.yaml in . or
// $HOME if empty), a local .env, and environment overrides, memoizing
// the result.
func Load(configFile string) (*Config, error) {
	if global != nil {
		return global, nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("warning: error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName("episodes")
		viper.SetConfigType("yaml")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	global = cfg
	return cfg, nil
}

// Get returns the global configuration, loading defaults if necessary.
func Get() *Config {
	if global == nil {
		cfg, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("failed to load configuration: %v", err))
		}
		return cfg
	}
	return global
}

// setDefaults populates every default named in the recognized
// configuration table (spec §6) plus the ambient app/db/server/logging
// defaults.
func setDefaults() {
	viper.SetDefault("app.env", "production")
	viper.SetDefault("app.log_level", "info")

	viper.SetDefault("database.dsn", "postgres://localhost:5432/episodes?sslmode=disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "1h")

	viper.SetDefault("ai.model", "gemini-2.0-flash")
	viper.SetDefault("ai.embedding_model", "gemini-embedding-001")
	viper.SetDefault("ai.timeout", "30s")
	viper.SetDefault("ai.temperature", 0.7)
	viper.SetDefault("ai.max_concurrent", 8)

	viper.SetDefault("clustering.similarity_threshold", 0.85)
	viper.SetDefault("clustering.neighbor_limit", 10)
	viper.SetDefault("clustering.judge_neighbor_count", 5)

	viper.SetDefault("selection.freshness_days", 5)
	viper.SetDefault("selection.coverage_boost", 17.0)
	viper.SetDefault("selection.min_importance", 40.0)
	viper.SetDefault("selection.backup_limit", 3)
	viper.SetDefault("selection.decay_rate", map[string]interface{}{
		"World News":           0.05,
		"Politics":             0.02,
		"Business":             0.025,
		"Technology":           0.01,
		"Science & Environment": 0.005,
		"Sports":               0.03,
		"Arts & Culture":       0.005,
		"Health":               0.008,
		"Lifestyle":            0.005,
		"default":              0.02,
	})

	viper.SetDefault("script.words_per_minute", 120)
	viper.SetDefault("script.max_sources", 10)

	viper.SetDefault("tts.provider", "google")
	viper.SetDefault("tts.voice", "en-US-Neural2-D")
	viper.SetDefault("tts.batch_size", 8)
	viper.SetDefault("tts.crossfade_ms", 50)

	viper.SetDefault("audio.bitrate_kbps", 128)

	viper.SetDefault("objectstore.provider", "local")
	viper.SetDefault("objectstore.local_dir", "episode-artifacts")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("ingestor.poll_interval", "10m")
	viper.SetDefault("ingestor.concurrency", 4)
}
