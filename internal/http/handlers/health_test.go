package handlers

import (
	"context"
	"testing"
)

type fakeSupervisorStats struct {
	running int
	max     int
}

func (f fakeSupervisorStats) RunningCount() int  { return f.running }
func (f fakeSupervisorStats) MaxConcurrent() int { return f.max }

func TestHealthHandler_GetHealth(t *testing.T) {
	handler := NewHealthHandler("1.0.0")

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output == nil {
		t.Fatal("expected non-nil output")
	}

	if output.Body.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", output.Body.Status)
	}

	if output.Body.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", output.Body.Version)
	}

	if output.Body.Uptime == "" {
		t.Error("expected non-empty uptime")
	}

	if output.Body.CPUInfo.Cores == 0 {
		t.Error("expected non-zero CPU cores")
	}

	if output.Body.Components.Database.Status != "unknown" {
		t.Errorf("expected database status 'unknown' when db not wired, got '%s'", output.Body.Components.Database.Status)
	}

	if output.Body.Components.Supervisor.Status != "unknown" {
		t.Errorf("expected supervisor status 'unknown' when supervisor not wired, got '%s'", output.Body.Components.Supervisor.Status)
	}
}

func TestHealthHandler_GetHealth_WithSupervisor(t *testing.T) {
	handler := NewHealthHandler("1.0.0").WithSupervisor(fakeSupervisorStats{running: 3, max: 10})

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.Body.Components.Supervisor.Status != "ok" {
		t.Errorf("expected supervisor status 'ok', got '%s'", output.Body.Components.Supervisor.Status)
	}
	if output.Body.Components.Supervisor.RunningJobs != 3 {
		t.Errorf("expected 3 running jobs, got %d", output.Body.Components.Supervisor.RunningJobs)
	}
	if output.Body.Components.Supervisor.MaxConcurrent != 10 {
		t.Errorf("expected max_concurrent 10, got %d", output.Body.Components.Supervisor.MaxConcurrent)
	}
}
