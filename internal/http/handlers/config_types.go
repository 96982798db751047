package handlers

import (
	"time"
)

// UnifiedConfigResponse is the full configuration response.
type UnifiedConfigResponse struct {
	Success bool          `json:"success"`
	Runtime RuntimeConfig `json:"runtime"`
	Startup StartupConfig `json:"startup"`
	Meta    ConfigMeta    `json:"meta"`
}

// RuntimeConfig contains all runtime-modifiable settings.
type RuntimeConfig struct {
	Settings      ConfigRuntimeSettings     `json:"settings"`
	Features      map[string]bool           `json:"features"`
	FeatureConfig map[string]map[string]any `json:"feature_config,omitempty"`
}

// ConfigRuntimeSettings are the core runtime settings.
type ConfigRuntimeSettings struct {
	LogLevel             string `json:"log_level"`
	EnableRequestLogging bool   `json:"enable_request_logging"`
}

// StartupConfig contains read-only startup configuration.
type StartupConfig struct {
	Server   ServerConfigData   `json:"server"`
	Database DatabaseConfigData `json:"database"`
	Storage  StorageConfigData  `json:"storage"`
	Jobs     JobsConfigData     `json:"jobs"`
	FFmpeg   FFmpegConfigData   `json:"ffmpeg"`
}

// ServerConfigData represents server configuration.
type ServerConfigData struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

// DatabaseConfigData represents database configuration.
type DatabaseConfigData struct {
	DSN          string `json:"dsn"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
}

// StorageConfigData represents the job input/output/log filesystem layout.
type StorageConfigData struct {
	DataDir   string `json:"data_dir"`
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir"`
	LogDir    string `json:"log_dir"`
	HLSURL    string `json:"hls_url,omitempty"`
}

// JobsConfigData represents job scheduling defaults (spec.md §6).
type JobsConfigData struct {
	MaxConcurrent          int    `json:"max_concurrent"`
	DefaultSegmentDuration int    `json:"default_segment_duration"`
	AutoRestartOnBoot      bool   `json:"auto_restart_on_boot"`
	ReconcileInterval      string `json:"reconcile_interval"`
}

// FFmpegConfigData represents encoder binary configuration.
type FFmpegConfigData struct {
	BinaryPath      string   `json:"binary_path,omitempty"`
	ProbePath       string   `json:"probe_path,omitempty"`
	HWAccelPriority []string `json:"hwaccel_priority,omitempty"`
}

// ConfigMeta contains metadata about the configuration.
type ConfigMeta struct {
	ConfigPath   string    `json:"config_path,omitempty"`
	CanPersist   bool      `json:"can_persist"`
	LastModified time.Time `json:"last_modified,omitempty"`
	Source       string    `json:"source"` // "file", "env", "defaults"
}

// UnifiedConfigUpdate is the request body for updating configuration.
type UnifiedConfigUpdate struct {
	Settings *ConfigRuntimeSettings `json:"settings,omitempty"`
	Features map[string]bool        `json:"features,omitempty"`
}

// ConfigUpdateResponse is the response for a config update.
type ConfigUpdateResponse struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	AppliedChanges []string `json:"applied_changes,omitempty"`
}

// ConfigPersistResponse is the response for persisting config to file.
type ConfigPersistResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Path     string   `json:"path,omitempty"`
	Sections []string `json:"sections,omitempty"`
}
