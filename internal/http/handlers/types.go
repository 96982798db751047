// Package handlers provides HTTP API handlers for streamforge.
package handlers

import (
	"time"

	"github.com/streamforge/streamforge/internal/models"
)

// Common response types

// PaginationMeta contains pagination metadata in responses.
type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int64 `json:"total_pages"`
}

// Health types

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	StartedAgo    string            `json:"started_ago" doc:"Human-readable time since the server started, e.g. '3 hours ago'"`
	SystemLoad    float64           `json:"system_load"`
	CPUInfo       CPUInfo           `json:"cpu_info"`
	Memory        MemoryInfo        `json:"memory"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// CPUInfo contains CPU load information.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo contains memory usage information.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	FreeMemoryMB      float64           `json:"free_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	SwapUsedMB        float64           `json:"swap_used_mb"`
	SwapTotalMB       float64           `json:"swap_total_mb"`
	UsedMemoryHuman   string            `json:"used_memory_human" doc:"Used memory formatted for display, e.g. '1.2 GB'"`
	ProcessMemory     ProcessMemoryInfo `json:"process_memory"`
}

// ProcessMemoryInfo contains process-specific memory information.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
	ChildProcessCount  int     `json:"child_process_count"`
}

// HealthComponents contains health status of various components.
type HealthComponents struct {
	Database   DatabaseHealth   `json:"database"`
	Supervisor SupervisorHealth `json:"supervisor"`
}

// DatabaseHealth contains database health information.
type DatabaseHealth struct {
	Status                 string  `json:"status"`
	ConnectionPoolSize     int     `json:"connection_pool_size"`
	ActiveConnections      int     `json:"active_connections"`
	IdleConnections        int     `json:"idle_connections"`
	PoolUtilizationPercent float64 `json:"pool_utilization_percent"`
	ResponseTimeMS         float64 `json:"response_time_ms"`
	ResponseTimeStatus     string  `json:"response_time_status"`
	TablesAccessible       bool    `json:"tables_accessible"`
	WriteCapability        bool    `json:"write_capability"`
	NoBlockingLocks        bool    `json:"no_blocking_locks"`
}

// SupervisorHealth contains encoding supervisor health information.
type SupervisorHealth struct {
	Status        string `json:"status"`
	RunningJobs   int    `json:"running_jobs"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// UnifiedConfig types

// UnifiedConfigData is the wire representation of models.UnifiedConfig, used
// both to accept create/update request bodies and to echo a job's config
// back in responses.
type UnifiedConfigData struct {
	InputFile    string   `json:"input_file" doc:"Source input (file path, URL, or device)" required:"true"`
	VideoCodec   string   `json:"video_codec" doc:"Target video codec, e.g. h264, hevc, vp9" required:"true"`
	AudioCodec   string   `json:"audio_codec" doc:"Target audio codec, e.g. aac, opus" required:"true"`
	OutputFormat string   `json:"output_format" doc:"hls, udp, rtmp, file, mp4, mkv, webm, mov, avi" required:"true"`
	OutputDir    string   `json:"output_dir,omitempty" doc:"Required when output_format=hls"`
	OutputURL    string   `json:"output_url,omitempty" doc:"Required when output_format!=hls"`
	VideoBitrate string   `json:"video_bitrate,omitempty" doc:"e.g. 3M, 1500k"`
	AudioBitrate string   `json:"audio_bitrate,omitempty"`
	Width        int      `json:"width,omitempty"`
	Height       int      `json:"height,omitempty"`
	FrameRate    float64  `json:"frame_rate,omitempty"`
	Preset       string   `json:"preset,omitempty"`
	Profile      string   `json:"profile,omitempty"`
	Level        string   `json:"level,omitempty"`
	HWAccel      string   `json:"hardware_accel,omitempty" doc:"none, nvenc, vaapi, videotoolbox"`

	SegmentDuration int    `json:"segment_duration,omitempty"`
	PlaylistSize    int    `json:"playlist_size,omitempty"`
	PlaylistType    string `json:"playlist_type,omitempty" doc:"live, event, vod"`
	SegmentType     string `json:"segment_type,omitempty" doc:"mpegts, fmp4"`
	SegmentPattern  string `json:"segment_pattern,omitempty"`

	ABREnabled bool                `json:"abr_enabled,omitempty"`
	ABRLadder  []ABRVariantData    `json:"abr_ladder,omitempty"`
	StreamMaps []StreamMapData     `json:"stream_maps,omitempty"`

	LoopInput       bool     `json:"loop_input,omitempty"`
	InputDeviceArgs []string `json:"input_device_args,omitempty"`

	UDPOutputs  []string `json:"udp_outputs,omitempty"`
	RTMPOutputs []string `json:"rtmp_outputs,omitempty"`
	CustomArgs  []string `json:"custom_args,omitempty"`
}

// StreamMapData mirrors models.StreamMap.
type StreamMapData struct {
	InputStream string `json:"input_stream"`
	OutputLabel string `json:"output_label,omitempty"`
}

// ABRVariantData mirrors models.ABRVariant.
type ABRVariantData struct {
	Name         string `json:"name"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	VideoBitrate string `json:"video_bitrate,omitempty"`
	AudioBitrate string `json:"audio_bitrate,omitempty"`
	VideoCodec   string `json:"video_codec,omitempty"`
}

// ToModel converts the wire DTO into a models.UnifiedConfig ready for
// Normalize/Validate. jobID is left zero for create; the service stamps it.
func (d *UnifiedConfigData) ToModel() *models.UnifiedConfig {
	c := &models.UnifiedConfig{
		InputFile:       d.InputFile,
		VideoCodec:      d.VideoCodec,
		AudioCodec:      d.AudioCodec,
		OutputFormat:    models.OutputFormat(d.OutputFormat),
		OutputDir:       d.OutputDir,
		OutputURL:       d.OutputURL,
		VideoBitrate:    d.VideoBitrate,
		AudioBitrate:    d.AudioBitrate,
		Width:           d.Width,
		Height:          d.Height,
		FrameRate:       d.FrameRate,
		Preset:          d.Preset,
		Profile:         d.Profile,
		Level:           d.Level,
		HWAccel:         models.HWAccel(d.HWAccel),
		SegmentDuration: d.SegmentDuration,
		PlaylistSize:    d.PlaylistSize,
		PlaylistType:    models.PlaylistType(d.PlaylistType),
		SegmentType:     models.SegmentType(d.SegmentType),
		SegmentPattern:  d.SegmentPattern,
		ABREnabled:      d.ABREnabled,
		LoopInput:       d.LoopInput,
		InputDeviceArgs: models.StringList(d.InputDeviceArgs),
		UDPOutputs:      models.StringList(d.UDPOutputs),
		RTMPOutputs:     models.StringList(d.RTMPOutputs),
		CustomArgs:      models.StringList(d.CustomArgs),
	}
	for _, v := range d.ABRLadder {
		c.ABRLadder = append(c.ABRLadder, models.ABRVariant{
			Name:         v.Name,
			Width:        v.Width,
			Height:       v.Height,
			VideoBitrate: v.VideoBitrate,
			AudioBitrate: v.AudioBitrate,
			VideoCodec:   v.VideoCodec,
		})
	}
	for _, m := range d.StreamMaps {
		c.StreamMaps = append(c.StreamMaps, models.StreamMap{
			InputStream: m.InputStream,
			OutputLabel: m.OutputLabel,
		})
	}
	return c
}

// UnifiedConfigFromModel converts a persisted config to its wire form.
func UnifiedConfigFromModel(c *models.UnifiedConfig) UnifiedConfigData {
	if c == nil {
		return UnifiedConfigData{}
	}
	d := UnifiedConfigData{
		InputFile:       c.InputFile,
		VideoCodec:      c.VideoCodec,
		AudioCodec:      c.AudioCodec,
		OutputFormat:    string(c.OutputFormat),
		OutputDir:       c.OutputDir,
		OutputURL:       c.OutputURL,
		VideoBitrate:    c.VideoBitrate,
		AudioBitrate:    c.AudioBitrate,
		Width:           c.Width,
		Height:          c.Height,
		FrameRate:       c.FrameRate,
		Preset:          c.Preset,
		Profile:         c.Profile,
		Level:           c.Level,
		HWAccel:         string(c.HWAccel),
		SegmentDuration: c.SegmentDuration,
		PlaylistSize:    c.PlaylistSize,
		PlaylistType:    string(c.PlaylistType),
		SegmentType:     string(c.SegmentType),
		SegmentPattern:  c.SegmentPattern,
		ABREnabled:      c.ABREnabled,
		LoopInput:       c.LoopInput,
		InputDeviceArgs: []string(c.InputDeviceArgs),
		UDPOutputs:      []string(c.UDPOutputs),
		RTMPOutputs:     []string(c.RTMPOutputs),
		CustomArgs:      []string(c.CustomArgs),
	}
	for _, v := range c.ABRLadder {
		d.ABRLadder = append(d.ABRLadder, ABRVariantData{
			Name:         v.Name,
			Width:        v.Width,
			Height:       v.Height,
			VideoBitrate: v.VideoBitrate,
			AudioBitrate: v.AudioBitrate,
			VideoCodec:   v.VideoCodec,
		})
	}
	for _, m := range c.StreamMaps {
		d.StreamMaps = append(d.StreamMaps, StreamMapData{
			InputStream: m.InputStream,
			OutputLabel: m.OutputLabel,
		})
	}
	return d
}

// Job types

// JobResponse represents an encoding job in API responses.
type JobResponse struct {
	ID              models.ULID       `json:"id"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Name            string            `json:"name"`
	Priority        int               `json:"priority"`
	Status          models.JobStatus  `json:"status"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	StoppedAt       *time.Time        `json:"stopped_at,omitempty"`
	PID             *int              `json:"pid,omitempty"`
	Command         string            `json:"command,omitempty"`
	CommandOverride string            `json:"command_override,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Config          UnifiedConfigData `json:"config"`
}

// JobFromModel converts a job (with its owned config preloaded) to a response.
func JobFromModel(j *models.Job) JobResponse {
	resp := JobResponse{
		ID:              j.ID,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		Name:            j.Name,
		Priority:        j.Priority,
		Status:          j.Status,
		PID:             j.PID,
		Command:         j.Command,
		CommandOverride: j.CommandOverride,
		ErrorMessage:    j.ErrorMessage,
		Config:          UnifiedConfigFromModel(j.UnifiedConfig),
	}
	if j.StartedAt != nil {
		t := time.Time(*j.StartedAt)
		resp.StartedAt = &t
	}
	if j.StoppedAt != nil {
		t := time.Time(*j.StoppedAt)
		resp.StoppedAt = &t
	}
	return resp
}

// ArchivedJobResponse represents an archived job snapshot in API responses.
type ArchivedJobResponse struct {
	ID            models.ULID     `json:"id"`
	OriginalJobID models.ULID     `json:"original_job_id"`
	Name          string          `json:"name"`
	Priority      int             `json:"priority"`
	Status        models.JobStatus `json:"status"`
	ArchivedAt    time.Time       `json:"archived_at"`
	Reason        string          `json:"reason,omitempty"`
}

// ArchivedJobFromModel converts an archived job to a response.
func ArchivedJobFromModel(a *models.ArchivedJob) ArchivedJobResponse {
	return ArchivedJobResponse{
		ID:            a.ID,
		OriginalJobID: a.OriginalJobID,
		Name:          a.Name,
		Priority:      a.Priority,
		Status:        a.Status,
		ArchivedAt:    a.ArchivedAt,
		Reason:        a.Reason,
	}
}
