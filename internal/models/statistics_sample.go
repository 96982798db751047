package models

import (
	"gorm.io/gorm"
)

// StatisticsSample is one append-only telemetry point parsed from an
// encoder's stderr progress burst (spec §3, §4.5). Samples are written in
// batches of up to K or every T ms, whichever comes first, but each sample
// also carries a monotonic Timestamp assigned at parse time so ordering is
// preserved regardless of batch boundaries.
type StatisticsSample struct {
	BaseModel

	// JobID ties the sample to its owning job. Deleting or archiving the job
	// does not remove its samples (archival snapshots the config, not the
	// series); they go with age-based retention pruning or DeleteByJobID.
	JobID ULID `gorm:"type:varchar(26);not null;index:idx_stats_job_ts" json:"job_id"`

	// Timestamp is the monotonic sample time, distinct from CreatedAt (the
	// row's insert time, which lags Timestamp by up to the batching window).
	Timestamp int64 `gorm:"not null;index:idx_stats_job_ts" json:"timestamp"`

	FPS                float64 `json:"fps"`
	BitrateBPS          int64   `json:"bitrate_bps"`
	DroppedFrames       int64   `json:"dropped_frames"`
	Speed               float64 `json:"speed"`
	CPUPercent          float64 `json:"cpu_percent"`
	MemoryMB            float64 `json:"memory_mb"`
	GPUPercent          float64 `json:"gpu_percent,omitempty"`
	TotalFrames         int64   `json:"total_frames"`
	CurrentTimeOffsetMs int64   `json:"current_time_offset"`
}

// TableName returns the table name for StatisticsSample.
func (StatisticsSample) TableName() string {
	return "statistics_samples"
}

// BeforeCreate generates a ULID; samples carry no other validation since
// the telemetry parser is the sole producer and already guards the values
// it forwards.
func (s *StatisticsSample) BeforeCreate(tx *gorm.DB) error {
	return s.BaseModel.BeforeCreate(tx)
}
