package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a single validation problem (field + message).
// The Job Service surfaces these synchronously; they are never logged as
// incidents (spec §7, kind 1: Validation).
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// ErrConflict represents an illegal state transition — update while
// running, start while at the concurrency cap, duplicate name (spec §7,
// kind 2: Conflict).
type ErrConflict struct {
	Reason string
}

func (e ErrConflict) Error() string {
	return "conflict: " + e.Reason
}

// ErrNotFound represents an unknown job id (spec §7, kind 3: NotFound).
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ErrSpawn represents an exec failure, missing binary, or permission
// denial when the supervisor attempts to launch an encoder (spec §7,
// kind 4: Spawn).
type ErrSpawn struct {
	Cause error
}

func (e ErrSpawn) Error() string {
	return fmt.Sprintf("spawn failed: %v", e.Cause)
}

func (e ErrSpawn) Unwrap() error {
	return e.Cause
}

// ErrRuntime represents a non-zero encoder exit; StderrTail carries the
// last captured lines for the job's error_message (spec §7, kind 5: Runtime).
type ErrRuntime struct {
	ExitCode   int
	StderrTail string
}

func (e ErrRuntime) Error() string {
	return fmt.Sprintf("encoder exited %d: %s", e.ExitCode, e.StderrTail)
}

// ErrLost represents a job the store shows as running with no corresponding
// OS process, produced on boot reconciliation (spec §7, kind 6: Lost).
var ErrLost = errors.New("process missing on restart")

// Sentinel errors for Job/UnifiedConfig validation (kind 1: Validation,
// structural checks that don't need the full ErrValidation problem list).
var (
	ErrJobNameRequired  = errors.New("name is required")
	ErrJobPriorityRange = errors.New("priority must be between 1 and 10")

	// ErrCommandOverrideMustStartWithFFmpeg guards update_command (spec §4.7,
	// §6: "400 if not starting with ffmpeg").
	ErrCommandOverrideMustStartWithFFmpeg = errors.New("command override must start with ffmpeg")

	// ErrJobRunning is returned by operations forbidden while a job is
	// running (update_unified, update_command, delete of the active config).
	ErrJobRunning = errors.New("job is running")

	// ErrAtCapacity is returned by start(job_id) when the supervisor's
	// concurrency cap is exhausted (spec §4.4 "BUSY").
	ErrAtCapacity = errors.New("at concurrency cap")

	// ErrDuplicateName is returned when creating a job whose name collides
	// with an existing active job.
	ErrDuplicateName = errors.New("duplicate job name")
)

// Sentinel errors retained for the out-of-core-scope preset/template CRUD
// (internal/models/encoding_profile.go) — presets are explicitly excluded
// from the core per spec §1 but the CRUD glue around them is kept.
var (
	ErrEncodingProfileNameRequired          = errors.New("encoding profile name is required")
	ErrEncodingProfileInvalidVideoCodec     = errors.New("invalid target video codec")
	ErrEncodingProfileInvalidAudioCodec     = errors.New("invalid target audio codec")
	ErrEncodingProfileInvalidQualityPreset  = errors.New("invalid quality preset")
	ErrEncodingProfileInvalidHWAccel        = errors.New("invalid hardware acceleration type")
)
