package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// OutputFormat is the primary output format of a job.
type OutputFormat string

// Valid OutputFormat values (spec §3).
const (
	OutputFormatHLS  OutputFormat = "hls"
	OutputFormatUDP  OutputFormat = "udp"
	OutputFormatRTMP OutputFormat = "rtmp"
	OutputFormatFile OutputFormat = "file"
	OutputFormatMP4  OutputFormat = "mp4"
	OutputFormatMKV  OutputFormat = "mkv"
	OutputFormatWebM OutputFormat = "webm"
	OutputFormatMOV  OutputFormat = "mov"
	OutputFormatAVI  OutputFormat = "avi"
)

func (f OutputFormat) valid() bool {
	switch f {
	case OutputFormatHLS, OutputFormatUDP, OutputFormatRTMP, OutputFormatFile,
		OutputFormatMP4, OutputFormatMKV, OutputFormatWebM, OutputFormatMOV, OutputFormatAVI:
		return true
	default:
		return false
	}
}

// HWAccel is the user-facing hardware acceleration selector.
type HWAccel string

// Valid HWAccel values (spec §3, §4.2). Note: the compiler's internal
// codec package calls the NVIDIA accelerator "cuda" — the public/storage
// name here is "nvenc" per spec §4.2's hardware encoder mapping table;
// translation happens in internal/compiler.
const (
	HWAccelNone         HWAccel = "none"
	HWAccelNVENC        HWAccel = "nvenc"
	HWAccelVAAPI        HWAccel = "vaapi"
	HWAccelVideoToolbox HWAccel = "videotoolbox"
)

func (h HWAccel) valid() bool {
	switch h {
	case "", HWAccelNone, HWAccelNVENC, HWAccelVAAPI, HWAccelVideoToolbox:
		return true
	default:
		return false
	}
}

// PlaylistType is the HLS playlist type.
type PlaylistType string

const (
	PlaylistTypeLive  PlaylistType = "live"
	PlaylistTypeEvent PlaylistType = "event"
	PlaylistTypeVOD   PlaylistType = "vod"
)

// SegmentType is the HLS segment container.
type SegmentType string

const (
	SegmentTypeMPEGTS SegmentType = "mpegts"
	SegmentTypeFMP4   SegmentType = "fmp4"
)

// StreamMap is one entry of an ordered `-map` list (spec §3: "ordered list
// of {input_stream, output_label}").
type StreamMap struct {
	InputStream string `json:"input_stream"`
	OutputLabel string `json:"output_label,omitempty"`
}

var streamMapPattern = regexp.MustCompile(`^0:[vas]:\d+$`)

func (m StreamMap) valid() bool {
	return streamMapPattern.MatchString(m.InputStream)
}

// StreamMapList is a JSON-backed ordered list of StreamMap, stored
// deterministically (array order preserved, no map reordering).
type StreamMapList []StreamMap

// Value implements driver.Valuer.
func (l StreamMapList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]StreamMap(l))
	return string(b), err
}

// Scan implements sql.Scanner.
func (l *StreamMapList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, ok := asBytes(value)
	if !ok {
		return fmt.Errorf("unsupported type for StreamMapList: %T", value)
	}
	if len(b) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(b, (*[]StreamMap)(l))
}

// GormDataType tells GORM to treat this as text across drivers.
func (StreamMapList) GormDataType() string {
	return "text"
}

// ABRVariant is one rendition in an adaptive-bitrate ladder.
type ABRVariant struct {
	Name        string `json:"name"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	VideoBitrate string `json:"video_bitrate,omitempty"`
	AudioBitrate string `json:"audio_bitrate,omitempty"`
	VideoCodec  string `json:"video_codec,omitempty"`
}

// resolution returns a comparable key for uniqueness checks.
func (v ABRVariant) resolution() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// ABRLadder is a JSON-backed ordered list of ABRVariant.
type ABRLadder []ABRVariant

func (l ABRLadder) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]ABRVariant(l))
	return string(b), err
}

func (l *ABRLadder) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, ok := asBytes(value)
	if !ok {
		return fmt.Errorf("unsupported type for ABRLadder: %T", value)
	}
	if len(b) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(b, (*[]ABRVariant)(l))
}

func (ABRLadder) GormDataType() string {
	return "text"
}

// StringList is a JSON-backed ordered list of strings, used for multi-output
// URL arrays and free-form custom args — deterministic, never reordered.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	return string(b), err
}

func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, ok := asBytes(value)
	if !ok {
		return fmt.Errorf("unsupported type for StringList: %T", value)
	}
	if len(b) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(b, (*[]string)(l))
}

func (StringList) GormDataType() string {
	return "text"
}

func asBytes(value any) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		return []byte(v), true
	default:
		return nil, false
	}
}

// UnifiedConfig is the single normalized record carrying every knob an
// encoder command depends on (spec §3). It is owned 1:1 by a Job.
type UnifiedConfig struct {
	BaseModel

	JobID ULID `gorm:"type:varchar(26);not null;uniqueIndex" json:"job_id"`

	// Required.
	InputFile    string       `gorm:"not null;type:text" json:"input_file"`
	VideoCodec   string       `gorm:"not null;size:20" json:"video_codec"`
	AudioCodec   string       `gorm:"not null;size:20" json:"audio_codec"`
	OutputFormat OutputFormat `gorm:"not null;size:10" json:"output_format"`

	// Primary output location — exactly one of these is set, depending on
	// OutputFormat (hls => OutputDir; else => OutputURL).
	OutputDir string `gorm:"type:text" json:"output_dir,omitempty"`
	OutputURL string `gorm:"type:text" json:"output_url,omitempty"`

	// Optional encode knobs.
	VideoBitrate string  `gorm:"size:20" json:"video_bitrate,omitempty"`
	AudioBitrate string  `gorm:"size:20" json:"audio_bitrate,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	FrameRate    float64 `json:"frame_rate,omitempty"`
	Preset       string  `gorm:"size:30" json:"preset,omitempty"`
	Profile      string  `gorm:"size:30" json:"profile,omitempty"`
	Level        string  `gorm:"size:10" json:"level,omitempty"`
	HWAccel      HWAccel `gorm:"size:20" json:"hardware_accel,omitempty"`

	// HLS parameters.
	SegmentDuration int          `gorm:"default:6" json:"segment_duration,omitempty"`
	PlaylistSize    int          `gorm:"default:5" json:"playlist_size,omitempty"`
	PlaylistType    PlaylistType `gorm:"size:10" json:"playlist_type,omitempty"`
	SegmentType     SegmentType  `gorm:"size:10" json:"segment_type,omitempty"`
	SegmentPattern  string       `gorm:"size:100" json:"segment_pattern,omitempty"`

	// ABR.
	ABREnabled bool      `gorm:"default:false" json:"abr_enabled"`
	ABRLadder  ABRLadder `gorm:"type:text" json:"abr_ladder,omitempty"`

	// Stream maps, in declared order.
	StreamMaps StreamMapList `gorm:"type:text" json:"stream_maps,omitempty"`

	// Loop / device input.
	LoopInput      bool       `gorm:"default:false" json:"loop_input"`
	InputDeviceArgs StringList `gorm:"type:text" json:"input_device_args,omitempty"`

	// Auxiliary outputs, limited to UDP/RTMP per spec §9 design note
	// (multi-output formalized as primary + zero-or-more UDP/RTMP
	// auxiliaries; per-output codec overrides left as a future extension).
	UDPOutputs  StringList `gorm:"type:text" json:"udp_outputs,omitempty"`
	RTMPOutputs StringList `gorm:"type:text" json:"rtmp_outputs,omitempty"`

	// Custom args appended last, never overriding compiler-controlled flags.
	CustomArgs StringList `gorm:"type:text" json:"custom_args,omitempty"`
}

// TableName returns the table name for UnifiedConfig.
func (UnifiedConfig) TableName() string {
	return "unified_configs"
}

// BeforeCreate generates the ULID; validation happens explicitly via
// Validate/Normalize in internal/jobservice, not as a GORM hook, since the
// config model in this spec is validated-then-normalized before it is ever
// persisted (spec §4.1: "Validation is pure").
func (c *UnifiedConfig) BeforeCreate(tx *gorm.DB) error {
	return c.BaseModel.BeforeCreate(tx)
}

// restrictedPrefixes mirrors internal/storage.Sandbox's path-traversal guard,
// applied to the compiler's "restricted output directory" error condition
// (spec §4.2).
var restrictedPrefixes = []string{"/etc", "/usr", "/bin", "/sbin", "/dev", "/proc", "/sys"}

// Normalize returns a normalized copy of c: bitrate strings canonicalized
// ("1.5M" -> "1500k"), empty strings left absent, codec aliases left in
// their user-facing form (translation to encoder identifiers happens at
// compile time, not at normalization — spec §4.1, §9).
func (c UnifiedConfig) Normalize() UnifiedConfig {
	n := c
	n.VideoCodec = strings.ToLower(strings.TrimSpace(n.VideoCodec))
	n.AudioCodec = strings.ToLower(strings.TrimSpace(n.AudioCodec))
	n.VideoBitrate = NormalizeBitrate(n.VideoBitrate)
	n.AudioBitrate = NormalizeBitrate(n.AudioBitrate)
	n.ABRLadder = append(ABRLadder(nil), c.ABRLadder...)
	for i := range n.ABRLadder {
		n.ABRLadder[i].VideoBitrate = NormalizeBitrate(n.ABRLadder[i].VideoBitrate)
		n.ABRLadder[i].AudioBitrate = NormalizeBitrate(n.ABRLadder[i].AudioBitrate)
	}
	if n.PlaylistSize == 0 {
		n.PlaylistSize = 5
	}
	if n.SegmentDuration == 0 {
		n.SegmentDuration = 6
	}
	return n
}

// bitratePattern matches a plain numeric rate with an optional M/K suffix,
// e.g. "1.5M", "5M", "192k", "128000".
var bitratePattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)([mk]?)$`)

// NormalizeBitrate canonicalizes a bitrate string to the "<int>k" form used
// throughout storage and the compiled argv (spec §4.1: "1.5M" -> "1500k").
// Values already in canonical form, or empty, pass through unchanged.
func NormalizeBitrate(rate string) string {
	rate = strings.TrimSpace(rate)
	if rate == "" {
		return ""
	}
	m := bitratePattern.FindStringSubmatch(rate)
	if m == nil {
		return rate
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return rate
	}
	switch strings.ToLower(m[2]) {
	case "m":
		value *= 1000
	case "k":
		// already kbps
	default:
		// bare number is interpreted as bits/sec per ffmpeg convention
		value /= 1000
	}
	return fmt.Sprintf("%dk", int64(value))
}

// Validate checks invariants that do not depend on the environment
// (spec §3 Invariants, §4.2 error conditions). It returns the first
// ErrValidation problem found; callers that need the full problem list
// should call CollectProblems.
func (c UnifiedConfig) Validate() error {
	problems := c.CollectProblems()
	if len(problems) > 0 {
		return problems[0]
	}
	return nil
}

// CollectProblems runs every invariant check and returns the full list of
// problems (spec §4.1: "error(list_of_problems)").
func (c UnifiedConfig) CollectProblems() []*ErrValidation {
	var problems []*ErrValidation

	if strings.TrimSpace(c.InputFile) == "" {
		problems = append(problems, &ErrValidation{Field: "input_file", Message: "required"})
	}
	if strings.TrimSpace(c.VideoCodec) == "" {
		problems = append(problems, &ErrValidation{Field: "video_codec", Message: "required"})
	}
	if strings.TrimSpace(c.AudioCodec) == "" {
		problems = append(problems, &ErrValidation{Field: "audio_codec", Message: "required"})
	}
	if !c.OutputFormat.valid() {
		problems = append(problems, &ErrValidation{Field: "output_format", Message: "unknown output format: " + string(c.OutputFormat)})
	}
	if !c.HWAccel.valid() {
		problems = append(problems, &ErrValidation{Field: "hardware_accel", Message: "unknown accelerator: " + string(c.HWAccel)})
	}

	// Primary output is xor between output_dir (hls) and output_url (else).
	if c.OutputFormat == OutputFormatHLS {
		if strings.TrimSpace(c.OutputDir) == "" {
			problems = append(problems, &ErrValidation{Field: "output_dir", Message: "required for hls output"})
		}
		if strings.TrimSpace(c.OutputURL) != "" {
			problems = append(problems, &ErrValidation{Field: "output_url", Message: "must be empty for hls output"})
		}
	} else {
		if strings.TrimSpace(c.OutputURL) == "" {
			problems = append(problems, &ErrValidation{Field: "output_url", Message: "required for non-hls output"})
		}
		if strings.TrimSpace(c.OutputDir) != "" {
			problems = append(problems, &ErrValidation{Field: "output_dir", Message: "must be empty for non-hls output"})
		}
	}

	if c.OutputFormat == OutputFormatHLS {
		if c.SegmentDuration != 0 && (c.SegmentDuration < 1 || c.SegmentDuration > 30) {
			problems = append(problems, &ErrValidation{Field: "segment_duration", Message: "must be 1..30"})
		}
		if c.PlaylistSize != 0 && (c.PlaylistSize < 1 || c.PlaylistSize > 20) {
			problems = append(problems, &ErrValidation{Field: "playlist_size", Message: "must be 1..20"})
		}
		switch c.PlaylistType {
		case "", PlaylistTypeLive, PlaylistTypeEvent, PlaylistTypeVOD:
		default:
			problems = append(problems, &ErrValidation{Field: "playlist_type", Message: "must be live, event, or vod"})
		}
		switch c.SegmentType {
		case "", SegmentTypeMPEGTS, SegmentTypeFMP4:
		default:
			problems = append(problems, &ErrValidation{Field: "segment_type", Message: "must be mpegts or fmp4"})
		}
	}

	if c.ABREnabled {
		if c.OutputFormat != OutputFormatHLS {
			problems = append(problems, &ErrValidation{Field: "abr_enabled", Message: "requires output_format=hls"})
		}
		if len(c.ABRLadder) < 2 || len(c.ABRLadder) > 6 {
			problems = append(problems, &ErrValidation{Field: "abr_ladder", Message: "must have 2..6 variants"})
		}
		names := map[string]bool{}
		resolutions := map[string]bool{}
		needsFMP4 := false
		for _, v := range c.ABRLadder {
			if names[v.Name] {
				problems = append(problems, &ErrValidation{Field: "abr_ladder", Message: "duplicate variant name: " + v.Name})
			}
			names[v.Name] = true
			res := v.resolution()
			if resolutions[res] {
				problems = append(problems, &ErrValidation{Field: "abr_ladder", Message: "duplicate variant resolution: " + res})
			}
			resolutions[res] = true
			if v.VideoCodec == "h265" || v.VideoCodec == "hevc" || v.VideoCodec == "av1" {
				needsFMP4 = true
			}
		}
		if needsFMP4 && c.SegmentType != SegmentTypeFMP4 {
			problems = append(problems, &ErrValidation{Field: "segment_type", Message: "must be fmp4 when an ABR variant uses HEVC or AV1"})
		}
	}

	for _, sm := range c.StreamMaps {
		if !sm.valid() {
			problems = append(problems, &ErrValidation{Field: "stream_maps", Message: "malformed stream map: " + sm.InputStream})
		}
	}

	for _, prefix := range restrictedPrefixes {
		if strings.HasPrefix(c.OutputDir, prefix) {
			problems = append(problems, &ErrValidation{Field: "output_dir", Message: "restricted path prefix: " + prefix})
		}
	}
	if strings.Contains(c.OutputDir, "..") {
		problems = append(problems, &ErrValidation{Field: "output_dir", Message: "path traversal not allowed"})
	}

	return problems
}

// Serialize returns a deterministic JSON encoding of the normalized config,
// used for the Job's cached full_config (spec §3, §4.1 "Serialization is
// deterministic"). Struct field order (not map key order) is what makes
// this deterministic — callers must not route it through map[string]any.
func (c UnifiedConfig) Serialize() (string, error) {
	b, err := json.Marshal(c.Normalize())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
