// Package config provides configuration management for streamforge using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort         = 8080
	defaultServerTimeout      = 30 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultMaxOpenConns       = 25
	defaultMaxIdleConns       = 10
	defaultConnMaxIdleTime    = 30 * time.Minute
	defaultMaxConcurrentJobs  = 10
	defaultSegmentDuration    = 6
	defaultReconcileInterval  = 15 * time.Second
	defaultLogTailMaxLines    = 500
	defaultStatisticsRetention = 7 * 24 * time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds the filesystem layout for job inputs, outputs, and
// per-job log files.
type StorageConfig struct {
	DataDir   string `mapstructure:"data_dir"`   // base directory for persisted state (db, logs)
	InputDir  string `mapstructure:"input_dir"`  // root directory job input files are resolved against
	OutputDir string `mapstructure:"output_dir"` // root directory HLS/file output trees are written under, keyed by job id
	LogDir    string `mapstructure:"log_dir"`    // root directory per-job ffmpeg log files are written under
	HLSURL    string `mapstructure:"hls_url"`    // base URL the HLS file server publishes job output under
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// JobsConfig holds scheduling and lifecycle defaults for encoding jobs
// (spec.md §6's MAX_CONCURRENT_JOBS / DEFAULT_SEGMENT_DURATION /
// AUTO_RESTART_JOBS_ON_BOOT).
type JobsConfig struct {
	MaxConcurrent          int           `mapstructure:"max_concurrent"`
	DefaultSegmentDuration int           `mapstructure:"default_segment_duration"`
	AutoRestartOnBoot      bool          `mapstructure:"auto_restart_on_boot"`
	ReconcileInterval      time.Duration `mapstructure:"reconcile_interval"`
	LogTailMaxLines        int           `mapstructure:"log_tail_max_lines"`
	// StatisticsRetention bounds how long StatisticsSample rows are kept
	// (spec.md §3 "bounded by age"); a scheduled sweep deletes older rows.
	StatisticsRetention time.Duration `mapstructure:"statistics_retention"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath      string   `mapstructure:"binary_path"`      // Path to ffmpeg binary (empty = auto-detect)
	ProbePath       string   `mapstructure:"probe_path"`       // Path to ffprobe binary (empty = auto-detect)
	HWAccelPriority []string `mapstructure:"hwaccel_priority"` // Priority order: vaapi, nvenc, qsv, amf
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with STREAMFORGE_ and use underscores
// for nesting, e.g. STREAMFORGE_JOBS_MAX_CONCURRENT=10. The flat,
// unprefixed names from spec.md §6 (MAX_CONCURRENT_JOBS,
// DEFAULT_SEGMENT_DURATION, AUTO_RESTART_JOBS_ON_BOOT, HLS_URL, INPUT_PATH,
// OUTPUT_PATH, DATA_PATH) are bound as aliases so either form works.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)
	bindLegacyEnvAliases(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/streamforge")
		v.AddConfigPath("$HOME/.streamforge")
	}

	v.SetEnvPrefix("STREAMFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// bindLegacyEnvAliases binds the bare, unprefixed env var names spec.md §6
// documents directly onto their mapstructure keys, so an operator can set
// MAX_CONCURRENT_JOBS instead of STREAMFORGE_JOBS_MAX_CONCURRENT.
func bindLegacyEnvAliases(v *viper.Viper) {
	_ = v.BindEnv("jobs.max_concurrent", "MAX_CONCURRENT_JOBS")
	_ = v.BindEnv("jobs.default_segment_duration", "DEFAULT_SEGMENT_DURATION")
	_ = v.BindEnv("jobs.auto_restart_on_boot", "AUTO_RESTART_JOBS_ON_BOOT")
	_ = v.BindEnv("storage.hls_url", "HLS_URL")
	_ = v.BindEnv("storage.input_dir", "INPUT_PATH")
	_ = v.BindEnv("storage.output_dir", "OUTPUT_PATH")
	_ = v.BindEnv("storage.data_dir", "DATA_PATH")
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "streamforge.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.input_dir", "./data/input")
	v.SetDefault("storage.output_dir", "./data/output")
	v.SetDefault("storage.log_dir", "./data/logs")
	v.SetDefault("storage.hls_url", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Jobs defaults
	v.SetDefault("jobs.max_concurrent", defaultMaxConcurrentJobs)
	v.SetDefault("jobs.default_segment_duration", defaultSegmentDuration)
	v.SetDefault("jobs.auto_restart_on_boot", false)
	v.SetDefault("jobs.reconcile_interval", defaultReconcileInterval)
	v.SetDefault("jobs.log_tail_max_lines", defaultLogTailMaxLines)
	v.SetDefault("jobs.statistics_retention", defaultStatisticsRetention)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.hwaccel_priority", []string{"vaapi", "nvenc", "qsv", "amf"})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("jobs.max_concurrent must be at least 1")
	}
	if c.Jobs.DefaultSegmentDuration < 1 {
		return fmt.Errorf("jobs.default_segment_duration must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// OutputPathFor returns the output directory for a given job id.
func (c *StorageConfig) OutputPathFor(jobID string) string {
	return fmt.Sprintf("%s/%s", c.OutputDir, jobID)
}

// LogPathFor returns the log file path for a given job id.
func (c *StorageConfig) LogPathFor(jobID string) string {
	return fmt.Sprintf("%s/%s.log", c.LogDir, jobID)
}
