package handlers

import (
	"context"
	"maps"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/spf13/viper"
	"github.com/streamforge/streamforge/internal/observability"
)

// ConfigHandler handles unified configuration API endpoints.
type ConfigHandler struct {
	featureHandler *FeatureHandler
}

// NewConfigHandler creates a new unified config handler.
func NewConfigHandler(featureHandler *FeatureHandler) *ConfigHandler {
	return &ConfigHandler{
		featureHandler: featureHandler,
	}
}

// Register registers the config routes with the API.
func (h *ConfigHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getConfig",
		Method:      "GET",
		Path:        "/api/v1/config",
		Summary:     "Get unified configuration",
		Description: "Returns all configuration data including runtime settings, feature flags, and startup config",
		Tags:        []string{"Configuration"},
	}, h.GetConfig)

	huma.Register(api, huma.Operation{
		OperationID: "updateConfig",
		Method:      "PUT",
		Path:        "/api/v1/config",
		Summary:     "Update runtime configuration",
		Description: "Updates runtime-modifiable configuration. Omitted fields are not modified.",
		Tags:        []string{"Configuration"},
	}, h.UpdateConfig)

	huma.Register(api, huma.Operation{
		OperationID: "persistConfig",
		Method:      "POST",
		Path:        "/api/v1/config/persist",
		Summary:     "Save configuration to file",
		Description: "Persists current runtime configuration to the config file",
		Tags:        []string{"Configuration"},
	}, h.PersistConfig)
}

// UnifiedConfigInput is the input for getting unified config.
type UnifiedConfigInput struct{}

// UnifiedConfigOutput is the output for getting unified config.
type UnifiedConfigOutput struct {
	Body UnifiedConfigResponse
}

// GetConfig returns unified configuration.
func (h *ConfigHandler) GetConfig(ctx context.Context, input *UnifiedConfigInput) (*UnifiedConfigOutput, error) {
	runtime := RuntimeConfig{
		Settings: ConfigRuntimeSettings{
			LogLevel:             observability.GetLogLevel(),
			EnableRequestLogging: observability.IsRequestLoggingEnabled(),
		},
		Features:      h.getFeatures(),
		FeatureConfig: h.getFeatureConfig(),
	}

	startup := h.getStartupConfig()
	meta := h.getConfigMeta()

	return &UnifiedConfigOutput{
		Body: UnifiedConfigResponse{
			Success: true,
			Runtime: runtime,
			Startup: startup,
			Meta:    meta,
		},
	}, nil
}

// UnifiedConfigUpdateInput is the input for updating config.
type UnifiedConfigUpdateInput struct {
	Body UnifiedConfigUpdate
}

// UnifiedConfigUpdateOutput is the output for updating config.
type UnifiedConfigUpdateOutput struct {
	Body ConfigUpdateResponse
}

// UpdateConfig updates runtime configuration.
func (h *ConfigHandler) UpdateConfig(ctx context.Context, input *UnifiedConfigUpdateInput) (*UnifiedConfigUpdateOutput, error) {
	appliedChanges := []string{}

	if input.Body.Settings != nil {
		if input.Body.Settings.LogLevel != "" {
			oldLevel := observability.GetLogLevel()
			observability.SetLogLevel(input.Body.Settings.LogLevel)
			appliedChanges = append(appliedChanges, "log_level: "+oldLevel+" -> "+input.Body.Settings.LogLevel)
		}

		oldLogging := observability.IsRequestLoggingEnabled()
		observability.SetRequestLogging(input.Body.Settings.EnableRequestLogging)
		if oldLogging != input.Body.Settings.EnableRequestLogging {
			appliedChanges = append(appliedChanges, "enable_request_logging: changed")
		}
	}

	if input.Body.Features != nil {
		h.updateFeatures(input.Body.Features)
		for key, value := range input.Body.Features {
			if value {
				appliedChanges = append(appliedChanges, "features."+key+": true")
			} else {
				appliedChanges = append(appliedChanges, "features."+key+": false")
			}
		}
	}

	return &UnifiedConfigUpdateOutput{
		Body: ConfigUpdateResponse{
			Success:        true,
			Message:        "Configuration updated successfully",
			AppliedChanges: appliedChanges,
		},
	}, nil
}

// PersistConfigInput is the input for persisting config.
type PersistConfigInput struct{}

// PersistConfigOutput is the output for persisting config.
type PersistConfigOutput struct {
	Body ConfigPersistResponse
}

// PersistConfig saves configuration to file.
func (h *ConfigHandler) PersistConfig(ctx context.Context, input *PersistConfigInput) (*PersistConfigOutput, error) {
	configPath := viper.ConfigFileUsed()

	if configPath == "" {
		return nil, huma.Error403Forbidden("No config file path configured")
	}

	if _, err := os.Stat(configPath); err == nil {
		file, err := os.OpenFile(configPath, os.O_WRONLY, 0)
		if err != nil {
			return nil, huma.Error403Forbidden("Config file is not writable: " + err.Error())
		}
		file.Close()
	}

	viper.Set("logging.level", observability.GetLogLevel())
	viper.Set("logging.request_logging", observability.IsRequestLoggingEnabled())

	if err := viper.WriteConfig(); err != nil {
		return nil, huma.Error500InternalServerError("Failed to write config file: " + err.Error())
	}

	return &PersistConfigOutput{
		Body: ConfigPersistResponse{
			Success:  true,
			Message:  "Configuration saved to " + configPath,
			Path:     configPath,
			Sections: []string{"logging"},
		},
	}, nil
}

// Helper methods

func (h *ConfigHandler) getFeatures() map[string]bool {
	if h.featureHandler == nil {
		return make(map[string]bool)
	}

	h.featureHandler.mu.RLock()
	defer h.featureHandler.mu.RUnlock()

	flags := make(map[string]bool, len(h.featureHandler.flags))
	maps.Copy(flags, h.featureHandler.flags)
	return flags
}

func (h *ConfigHandler) getFeatureConfig() map[string]map[string]any {
	if h.featureHandler == nil {
		return nil
	}

	h.featureHandler.mu.RLock()
	defer h.featureHandler.mu.RUnlock()

	if len(h.featureHandler.config) == 0 {
		return nil
	}

	config := make(map[string]map[string]any, len(h.featureHandler.config))
	for k, v := range h.featureHandler.config {
		configCopy := make(map[string]any, len(v))
		maps.Copy(configCopy, v)
		config[k] = configCopy
	}
	return config
}

func (h *ConfigHandler) updateFeatures(features map[string]bool) {
	if h.featureHandler == nil {
		return
	}

	h.featureHandler.mu.Lock()
	defer h.featureHandler.mu.Unlock()

	maps.Copy(h.featureHandler.flags, features)
}

func (h *ConfigHandler) getStartupConfig() StartupConfig {
	return StartupConfig{
		Server: ServerConfigData{
			Host:         viper.GetString("server.host"),
			Port:         viper.GetInt("server.port"),
			ReadTimeout:  viper.GetDuration("server.read_timeout").String(),
			WriteTimeout: viper.GetDuration("server.write_timeout").String(),
		},
		Database: DatabaseConfigData{
			DSN:          "[redacted]", // Don't expose credentials
			MaxOpenConns: viper.GetInt("database.max_open_conns"),
			MaxIdleConns: viper.GetInt("database.max_idle_conns"),
		},
		Storage: StorageConfigData{
			DataDir:   viper.GetString("storage.data_dir"),
			InputDir:  viper.GetString("storage.input_dir"),
			OutputDir: viper.GetString("storage.output_dir"),
			LogDir:    viper.GetString("storage.log_dir"),
			HLSURL:    viper.GetString("storage.hls_url"),
		},
		Jobs: JobsConfigData{
			MaxConcurrent:          viper.GetInt("jobs.max_concurrent"),
			DefaultSegmentDuration: viper.GetInt("jobs.default_segment_duration"),
			AutoRestartOnBoot:      viper.GetBool("jobs.auto_restart_on_boot"),
			ReconcileInterval:      viper.GetDuration("jobs.reconcile_interval").String(),
		},
		FFmpeg: FFmpegConfigData{
			BinaryPath:      viper.GetString("ffmpeg.binary_path"),
			ProbePath:       viper.GetString("ffmpeg.probe_path"),
			HWAccelPriority: viper.GetStringSlice("ffmpeg.hwaccel_priority"),
		},
	}
}

func (h *ConfigHandler) getConfigMeta() ConfigMeta {
	configPath := viper.ConfigFileUsed()
	canPersist := false
	var lastModified time.Time
	source := "defaults"

	if configPath != "" {
		source = "file"
		if info, err := os.Stat(configPath); err == nil {
			lastModified = info.ModTime()
			if file, err := os.OpenFile(configPath, os.O_WRONLY, 0); err == nil {
				canPersist = true
				file.Close()
			}
		}
	}

	if os.Getenv("STREAMFORGE_SERVER_PORT") != "" || os.Getenv("STREAMFORGE_DATABASE_DSN") != "" {
		source = "env"
	}

	return ConfigMeta{
		ConfigPath:   configPath,
		CanPersist:   canPersist,
		LastModified: lastModified,
		Source:       source,
	}
}
