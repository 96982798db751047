package handlers

import (
	"context"
	"testing"

	"github.com/streamforge/streamforge/internal/observability"
)

func TestConfigHandler_GetConfig(t *testing.T) {
	featureHandler := NewFeatureHandler()
	handler := NewConfigHandler(featureHandler)

	output, err := handler.GetConfig(context.Background(), &UnifiedConfigInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output == nil {
		t.Fatal("expected non-nil output")
	}

	if !output.Body.Success {
		t.Error("expected success=true")
	}

	if output.Body.Runtime.Settings.LogLevel == "" {
		t.Error("expected log_level to be set")
	}

	if output.Body.Runtime.Features == nil {
		t.Error("expected features to be set")
	}

	if output.Body.Meta.Source == "" {
		t.Error("expected meta.source to be set")
	}
}

func TestConfigHandler_UpdateConfig(t *testing.T) {
	t.Run("updates log level", func(t *testing.T) {
		featureHandler := NewFeatureHandler()
		handler := NewConfigHandler(featureHandler)

		originalLevel := observability.GetLogLevel()
		defer observability.SetLogLevel(originalLevel)

		output, err := handler.UpdateConfig(context.Background(), &UnifiedConfigUpdateInput{
			Body: UnifiedConfigUpdate{
				Settings: &ConfigRuntimeSettings{
					LogLevel:             "debug",
					EnableRequestLogging: false,
				},
			},
		})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !output.Body.Success {
			t.Error("expected success=true")
		}

		if len(output.Body.AppliedChanges) == 0 {
			t.Error("expected applied changes to be recorded")
		}

		if observability.GetLogLevel() != "debug" {
			t.Errorf("expected log level to be 'debug', got '%s'", observability.GetLogLevel())
		}
	})

	t.Run("updates features", func(t *testing.T) {
		featureHandler := NewFeatureHandler()
		handler := NewConfigHandler(featureHandler)

		output, err := handler.UpdateConfig(context.Background(), &UnifiedConfigUpdateInput{
			Body: UnifiedConfigUpdate{
				Features: map[string]bool{
					"debug-frontend": true,
				},
			},
		})

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !output.Body.Success {
			t.Error("expected success=true")
		}

		features := handler.getFeatures()
		if !features["debug-frontend"] {
			t.Error("expected debug-frontend feature to be true")
		}
	})
}

func TestConfigHandler_NilDependencies(t *testing.T) {
	handler := NewConfigHandler(nil)

	output, err := handler.GetConfig(context.Background(), &UnifiedConfigInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !output.Body.Success {
		t.Error("expected success=true")
	}

	if output.Body.Runtime.Features == nil {
		t.Error("expected features to be an empty map, not nil")
	}
}
