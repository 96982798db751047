// Package compiler implements the Command Compiler (spec §4.2): a pure,
// side-effect-free translation of a validated UnifiedConfig plus an
// EnvironmentContext into an encoder argv vector, an OutputPlan, and a set
// of warnings. It never touches the filesystem or spawns anything — that is
// the Supervisor's job.
package compiler

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	gohlslib "github.com/bluenviron/gohlslib/v2"

	"github.com/streamforge/streamforge/internal/codec"
	"github.com/streamforge/streamforge/internal/ffmpeg"
	"github.com/streamforge/streamforge/internal/models"
)

// WarningCode identifies a non-fatal compiler observation (spec §4.2: a
// missing hardware-encoder mapping cell "yields a warning and fall[s] back
// to the software encoder" rather than failing compilation).
type WarningCode string

const (
	// WarningHWAccelUnsupported fires when hardware_accel is set but the
	// codec has no mapping for it; the compiler falls back to software.
	WarningHWAccelUnsupported WarningCode = "hwaccel_unsupported_for_codec"
	// WarningHWAccelNotDetected fires when hardware_accel is set but the
	// environment's hardware inventory never detected that accelerator.
	WarningHWAccelNotDetected WarningCode = "hwaccel_not_detected"
	// WarningHLSSegmentTypeUnrecognized fires when the configured segment
	// type has no corresponding gohlslib muxer variant. Validate() already
	// constrains segment_type to {mpegts, fmp4}, so this only fires if that
	// enum and gohlslib's variant set ever drift apart.
	WarningHLSSegmentTypeUnrecognized WarningCode = "hls_segment_type_unrecognized"
)

// gohlslibVariantForSegmentType maps the spec's segment_type vocabulary to
// the gohlslib.MuxerVariant it corresponds to, as a sanity check that the
// compiler's HLS output parameters name something the HLS muxing library
// this repo vendors actually recognizes. The compiler never runs a muxer
// itself (that's the out-of-scope HLS file server) — this only validates
// the names.
func gohlslibVariantForSegmentType(segType models.SegmentType) (gohlslib.MuxerVariant, bool) {
	switch segType {
	case models.SegmentTypeMPEGTS, "":
		return gohlslib.MuxerVariantMPEGTS, true
	case models.SegmentTypeFMP4:
		return gohlslib.MuxerVariantFMP4, true
	default:
		return 0, false
	}
}

// checkHLSSegmentType returns a warning if segType doesn't map to a known
// gohlslib muxer variant.
func checkHLSSegmentType(segType models.SegmentType) []WarningCode {
	if _, ok := gohlslibVariantForSegmentType(segType); !ok {
		return []WarningCode{WarningHLSSegmentTypeUnrecognized}
	}
	return nil
}

// HWEncoderKey identifies one {accelerator, codec} pair in the environment's
// detected hardware inventory.
type HWEncoderKey struct {
	Accel string // public name: "nvenc", "vaapi", "videotoolbox"
	Codec string // public name: "h264", "h265", "av1"
}

// EnvironmentContext carries only what spec §4.2 allows the compiler to
// depend on: known hardware encoder inventory, base output directories, and
// the HLS public URL root. It never carries live state (running jobs,
// clocks) — that would break determinism.
type EnvironmentContext struct {
	// KnownHWEncoders is the set of {accel, codec} pairs the host actually
	// supports, populated at boot by hardware detection. A nil/empty set
	// means "unknown" and is treated permissively (no WarningHWAccelNotDetected).
	KnownHWEncoders map[HWEncoderKey]bool

	// BaseHLSDir and BaseFilesDir are the configured output roots
	// (spec §6: OUTPUT_PATH), used by the Job Service to default
	// OutputDir/OutputURL when a caller omits them. The compiler itself
	// only reads config.OutputDir/OutputURL, already validated as
	// sandboxed paths by UnifiedConfig.Validate.
	BaseHLSDir   string
	BaseFilesDir string

	// HLSPublicURL is the public prefix (spec §6: HLS_URL) used to build
	// the master-playlist public URL.
	HLSPublicURL string
}

func (e EnvironmentContext) hwSupported(accel, codecName string) bool {
	if len(e.KnownHWEncoders) == 0 {
		return true
	}
	return e.KnownHWEncoders[HWEncoderKey{Accel: accel, Codec: codecName}]
}

// OutputKind identifies which shape of OutputPlan was produced.
type OutputKind string

const (
	OutputKindHLS    OutputKind = "hls"
	OutputKindFile   OutputKind = "file"
	OutputKindStream OutputKind = "stream"
)

// OutputPlan identifies where the compiled command's artifacts land (spec
// §4.2). Exactly the fields relevant to Kind are populated.
type OutputPlan struct {
	Kind OutputKind

	// HLS.
	BaseDir           string
	MasterPlaylistPath string
	PublicMasterURL   string
	SegmentPattern    string

	// File.
	OutputFilePath   string
	PublicDownloadURL string

	// Stream (UDP/RTMP).
	DestinationURL string
	StreamKind     string // "udp" or "rtmp"
}

// hwAccelAlias translates the spec's public hardware_accel name to the
// internal codec package's identifier (codec.go keeps "cuda" for NVDEC;
// the spec's public vocabulary calls the NVIDIA encoder path "nvenc").
func hwAccelAlias(public string) codec.HWAccel {
	switch public {
	case "nvenc":
		return codec.HWAccelCUDA
	case "vaapi":
		return codec.HWAccelVAAPI
	case "videotoolbox":
		return codec.HWAccelVT
	default:
		return codec.HWAccelNone
	}
}

// Compile translates a validated, normalized UnifiedConfig into an argv
// vector, OutputPlan, and warning set. Same inputs yield identical outputs
// (spec §4.2). The caller (Job Service / Supervisor) is responsible for
// having already run UnifiedConfig.Validate.
func Compile(config *models.UnifiedConfig, env EnvironmentContext) ([]string, OutputPlan, []WarningCode, error) {
	if err := config.Validate(); err != nil {
		return nil, OutputPlan{}, nil, fmt.Errorf("compiling: %w", err)
	}

	var argv []string
	var warnings []WarningCode

	// 1. ffmpeg
	argv = append(argv, "ffmpeg")

	// 2. Hardware-accel input flags.
	hw := hwAccelAlias(string(config.HWAccel))
	if config.HWAccel != "" && config.HWAccel != models.HWAccelNone {
		if !env.hwSupported(string(config.HWAccel), config.VideoCodec) {
			warnings = append(warnings, WarningHWAccelNotDetected)
		}
		argv = append(argv, "-hwaccel", string(config.HWAccel))
	}

	// 3. Loop / real-time flags.
	if config.LoopInput {
		argv = append(argv, "-stream_loop", "-1", "-re")
	}

	// 4. Input-format flag (device inputs only — presence of device args
	// implies a device source per spec §3 "input device args").
	if len(config.InputDeviceArgs) > 0 {
		argv = append(argv, "-f", "v4l2")
	}

	// 5. Input auxiliary args, then free-form user args (already
	// shell-quoting-parsed and persisted as a list — see
	// internal/ffmpeg/validator.go's parseFlags for the parsing discipline
	// this mirrors).
	argv = append(argv, config.InputDeviceArgs...)

	// 6. -i <input>.
	argv = append(argv, "-i", config.InputFile)

	// 7. Stream maps, declared order.
	for _, sm := range config.StreamMaps {
		argv = append(argv, "-map", sm.InputStream)
	}

	// 8. Video codec, bitrate, frame rate, preset, profile, level, resolution.
	videoEncoder, videoWarn := resolveVideoEncoder(config, hw, env)
	if videoWarn != "" {
		warnings = append(warnings, WarningHWAccelUnsupported)
	}
	argv = append(argv, "-c:v", videoEncoder)
	if config.VideoBitrate != "" {
		argv = append(argv, "-b:v", config.VideoBitrate)
	}
	if config.FrameRate > 0 {
		argv = append(argv, "-r", strconv.FormatFloat(config.FrameRate, 'f', -1, 64))
	}
	if config.Preset != "" {
		argv = append(argv, "-preset", config.Preset)
	}
	if config.Profile != "" {
		argv = append(argv, "-profile:v", config.Profile)
	}
	if config.Level != "" {
		argv = append(argv, "-level", config.Level)
	}
	if config.Width > 0 && config.Height > 0 {
		argv = append(argv, "-s", fmt.Sprintf("%dx%d", config.Width, config.Height))
	}

	// 9. Audio codec, bitrate.
	audioEncoder := resolveAudioEncoder(config.AudioCodec)
	argv = append(argv, "-c:a", audioEncoder)
	if config.AudioBitrate != "" {
		argv = append(argv, "-b:a", config.AudioBitrate)
	}

	// 10. Output-format-specific block.
	plan, formatArgs, formatWarnings := compileOutputBlock(config, env, hw)
	argv = append(argv, formatArgs...)
	warnings = append(warnings, formatWarnings...)

	// 11. Multi-output -f/URL pairs for auxiliary outputs.
	for _, u := range config.UDPOutputs {
		argv = append(argv, "-f", "mpegts", u)
	}
	for _, u := range config.RTMPOutputs {
		argv = append(argv, "-f", "flv", u)
	}

	// 12. Custom user args appended last. Job Service rejects dangerous
	// flags outright (internal/jobservice's validateCustomArgs); this is a
	// last-resort sanitization in case a config reached the compiler by some
	// other path (spec §4.2 requires Compile itself to stay pure and safe).
	for _, arg := range config.CustomArgs {
		argv = append(argv, ffmpeg.SanitizeFlag(arg))
	}

	return argv, plan, dedupeWarnings(warnings), nil
}

func resolveVideoEncoder(config *models.UnifiedConfig, hw codec.HWAccel, env EnvironmentContext) (string, string) {
	v, ok := codec.ParseVideo(config.VideoCodec)
	if !ok {
		return config.VideoCodec, ""
	}
	if hw == codec.HWAccelNone {
		return codec.GetVideoEncoder(v, codec.HWAccelNone), ""
	}
	encoder := codec.GetVideoEncoder(v, hw)
	softwareEncoder := codec.GetVideoEncoder(v, codec.HWAccelNone)
	if encoder == softwareEncoder {
		// No mapping cell for this {accel, codec} pair (spec §4.2:
		// "Missing cells yield a warning and fall back to the software
		// encoder").
		return softwareEncoder, "missing"
	}
	return encoder, ""
}

func resolveAudioEncoder(audioCodec string) string {
	a, ok := codec.ParseAudio(audioCodec)
	if !ok {
		return audioCodec
	}
	return codec.GetAudioEncoder(a)
}

func dedupeWarnings(in []WarningCode) []WarningCode {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[WarningCode]bool, len(in))
	out := make([]WarningCode, 0, len(in))
	for _, w := range in {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// compileOutputBlock builds step 10 of the argv assembly order and the
// corresponding OutputPlan. The primary destination is always config.OutputDir
// (hls) or config.OutputURL (everything else); UDPOutputs/RTMPOutputs are
// auxiliary tee destinations handled separately in step 11.
func compileOutputBlock(config *models.UnifiedConfig, env EnvironmentContext, hw codec.HWAccel) (OutputPlan, []string, []WarningCode) {
	switch config.OutputFormat {
	case models.OutputFormatHLS:
		if config.ABREnabled {
			return compileABRHLS(config, env, hw)
		}
		return compileSingleHLS(config, env)
	case models.OutputFormatUDP:
		return OutputPlan{Kind: OutputKindStream, DestinationURL: config.OutputURL, StreamKind: "udp"},
			[]string{"-f", "mpegts", config.OutputURL}, nil
	case models.OutputFormatRTMP:
		return OutputPlan{Kind: OutputKindStream, DestinationURL: config.OutputURL, StreamKind: "rtmp"},
			[]string{"-f", "flv", config.OutputURL}, nil
	default:
		return compileFileOutput(config, env)
	}
}

func compileSingleHLS(config *models.UnifiedConfig, env EnvironmentContext) (OutputPlan, []string, []WarningCode) {
	baseDir := config.OutputDir
	pattern := config.SegmentPattern
	if pattern == "" {
		pattern = "segment_%03d.ts"
	}
	master := filepath.Join(baseDir, "master.m3u8")

	args := []string{
		"-f", "hls",
		"-hls_time", strconv.Itoa(config.SegmentDuration),
		"-hls_list_size", strconv.Itoa(config.PlaylistSize),
		"-hls_playlist_type", string(config.PlaylistType),
		"-hls_segment_type", string(config.SegmentType),
		"-hls_segment_filename", filepath.Join(baseDir, pattern),
		master,
	}

	plan := OutputPlan{
		Kind:               OutputKindHLS,
		BaseDir:            baseDir,
		MasterPlaylistPath: master,
		PublicMasterURL:    joinPublicURL(env.HLSPublicURL, config.JobID.String(), "master.m3u8"),
		SegmentPattern:     pattern,
	}
	return plan, args, checkHLSSegmentType(config.SegmentType)
}

func compileABRHLS(config *models.UnifiedConfig, env EnvironmentContext, _ codec.HWAccel) (OutputPlan, []string, []WarningCode) {
	baseDir := config.OutputDir
	pattern := config.SegmentPattern
	if pattern == "" {
		pattern = "segment_%03d.ts"
	}
	master := filepath.Join(baseDir, "master.m3u8")

	var args []string
	var warnings []WarningCode
	varStreamParts := make([]string, 0, len(config.ABRLadder))

	for i, variant := range config.ABRLadder {
		encoder, warn := resolveVideoEncoderForName(variant.VideoCodec, config.HWAccel, env)
		if warn != "" {
			warnings = append(warnings, WarningHWAccelUnsupported)
		}
		args = append(args,
			fmt.Sprintf("-c:v:%d", i), encoder,
		)
		if variant.VideoBitrate != "" {
			args = append(args, fmt.Sprintf("-b:v:%d", i), models.NormalizeBitrate(variant.VideoBitrate))
		}
		if variant.AudioBitrate != "" {
			args = append(args, fmt.Sprintf("-b:a:%d", i), models.NormalizeBitrate(variant.AudioBitrate))
		}
		if variant.Width > 0 && variant.Height > 0 {
			args = append(args, fmt.Sprintf("-s:v:%d", i), fmt.Sprintf("%dx%d", variant.Width, variant.Height))
		}
		varStreamParts = append(varStreamParts, fmt.Sprintf("v:%d,a:%d,name:%s", i, i, variant.Name))
	}

	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(config.SegmentDuration),
		"-hls_list_size", strconv.Itoa(config.PlaylistSize),
		"-hls_playlist_type", string(config.PlaylistType),
		"-hls_segment_type", string(config.SegmentType),
		"-master_pl_name", "master.m3u8",
		"-hls_segment_filename", filepath.Join(baseDir, "stream_%v", pattern),
		"-var_stream_map", strings.Join(varStreamParts, " "),
		filepath.Join(baseDir, "stream_%v", "playlist.m3u8"),
	)

	warnings = append(warnings, checkHLSSegmentType(config.SegmentType)...)

	plan := OutputPlan{
		Kind:               OutputKindHLS,
		BaseDir:            baseDir,
		MasterPlaylistPath: master,
		PublicMasterURL:    joinPublicURL(env.HLSPublicURL, config.JobID.String(), "master.m3u8"),
		SegmentPattern:     pattern,
	}
	return plan, args, warnings
}

func resolveVideoEncoderForName(name string, hwAccel models.HWAccel, env EnvironmentContext) (string, string) {
	hw := hwAccelAlias(string(hwAccel))
	v, ok := codec.ParseVideo(name)
	if !ok {
		return name, ""
	}
	if hw == codec.HWAccelNone {
		return codec.GetVideoEncoder(v, codec.HWAccelNone), ""
	}
	encoder := codec.GetVideoEncoder(v, hw)
	software := codec.GetVideoEncoder(v, codec.HWAccelNone)
	if encoder == software {
		return software, "missing"
	}
	return encoder, ""
}

func compileFileOutput(config *models.UnifiedConfig, env EnvironmentContext) (OutputPlan, []string, []WarningCode) {
	outPath := config.OutputURL

	plan := OutputPlan{
		Kind:              OutputKindFile,
		OutputFilePath:    outPath,
		PublicDownloadURL: joinPublicURL(env.HLSPublicURL, config.JobID.String(), filepath.Base(outPath)),
	}
	return plan, []string{outPath}, nil
}

func joinPublicURL(root string, parts ...string) string {
	root = strings.TrimSuffix(root, "/")
	return root + "/" + strings.Join(parts, "/")
}
