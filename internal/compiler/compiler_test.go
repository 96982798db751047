package compiler

import (
	"testing"

	"github.com/streamforge/streamforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() *models.UnifiedConfig {
	return &models.UnifiedConfig{
		JobID:        models.NewULID(),
		InputFile:    "rtsp://camera-1/stream",
		VideoCodec:   "h264",
		AudioCodec:   "aac",
		OutputFormat: models.OutputFormatHLS,
		OutputDir:    "/data/hls/job-1",
	}
}

func TestCompile_SingleHLS_BasicArgvOrder(t *testing.T) {
	config := baseConfig()
	env := EnvironmentContext{HLSPublicURL: "https://cdn.example.com/hls"}

	argv, plan, warnings, err := Compile(config, env)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.GreaterOrEqual(t, len(argv), 4)
	assert.Equal(t, "ffmpeg", argv[0])
	assert.Contains(t, argv, "-i")
	assert.Contains(t, argv, "rtsp://camera-1/stream")
	assert.Contains(t, argv, "-c:v")
	assert.Contains(t, argv, "-c:a")
	assert.Contains(t, argv, "-f")
	assert.Contains(t, argv, "hls")

	assert.Equal(t, OutputKindHLS, plan.Kind)
	assert.Equal(t, "/data/hls/job-1", plan.BaseDir)
	assert.Contains(t, plan.PublicMasterURL, config.JobID.String())
}

func TestCompile_InputBeforeOutputFlags(t *testing.T) {
	config := baseConfig()
	argv, _, _, err := Compile(config, EnvironmentContext{})
	require.NoError(t, err)

	var iIdx, cvIdx int
	for i, a := range argv {
		if a == "-i" {
			iIdx = i
		}
		if a == "-c:v" {
			cvIdx = i
		}
	}
	assert.Less(t, iIdx, cvIdx)
}

func TestCompile_StreamMapsInDeclaredOrder(t *testing.T) {
	config := baseConfig()
	config.StreamMaps = models.StreamMapList{
		{InputStream: "0:v:0"},
		{InputStream: "0:a:0"},
		{InputStream: "0:a:1"},
	}

	argv, _, _, err := Compile(config, EnvironmentContext{})
	require.NoError(t, err)

	var mapped []string
	for i, a := range argv {
		if a == "-map" {
			mapped = append(mapped, argv[i+1])
		}
	}
	assert.Equal(t, []string{"0:v:0", "0:a:0", "0:a:1"}, mapped)
}

func TestCompile_InvalidStreamMap_ReturnsError(t *testing.T) {
	config := baseConfig()
	config.StreamMaps = models.StreamMapList{{InputStream: "garbage"}}

	_, _, _, err := Compile(config, EnvironmentContext{})
	require.Error(t, err)
}

func TestCompile_HardwareAccel_NVENCMapped(t *testing.T) {
	config := baseConfig()
	config.HWAccel = models.HWAccelNVENC
	config.VideoCodec = "h264"

	argv, _, warnings, err := Compile(config, EnvironmentContext{})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Contains(t, argv, "h264_nvenc")
	assert.Contains(t, argv, "-hwaccel")
}

func TestCompile_HardwareAccel_NotDetected_Warns(t *testing.T) {
	config := baseConfig()
	config.HWAccel = models.HWAccelNVENC

	env := EnvironmentContext{
		KnownHWEncoders: map[HWEncoderKey]bool{
			{Accel: "vaapi", Codec: "h264"}: true,
		},
	}

	_, _, warnings, err := Compile(config, env)
	require.NoError(t, err)
	assert.Contains(t, warnings, WarningHWAccelNotDetected)
}

func TestCompile_HardwareAccel_UnsupportedForCodec_FallsBackToSoftware(t *testing.T) {
	config := baseConfig()
	config.HWAccel = models.HWAccelVideoToolbox
	config.VideoCodec = "mpeg2"

	argv, _, warnings, err := Compile(config, EnvironmentContext{})
	require.NoError(t, err)
	assert.Contains(t, warnings, WarningHWAccelUnsupported)
	assert.Contains(t, argv, "mpeg2video")
}

func TestCompile_ABRLadder_ProducesVarStreamMap(t *testing.T) {
	config := baseConfig()
	config.ABREnabled = true
	config.SegmentType = models.SegmentTypeMPEGTS
	config.ABRLadder = models.ABRLadder{
		{Name: "low", Width: 640, Height: 360, VideoBitrate: "800k", VideoCodec: "h264"},
		{Name: "high", Width: 1920, Height: 1080, VideoBitrate: "6M", VideoCodec: "h264"},
	}

	argv, plan, _, err := Compile(config, EnvironmentContext{})
	require.NoError(t, err)
	assert.Equal(t, OutputKindHLS, plan.Kind)

	joined := argv
	assert.Contains(t, joined, "-var_stream_map")
	assert.Contains(t, joined, "-c:v:0")
	assert.Contains(t, joined, "-c:v:1")
}

func TestCompile_UDPOutput_PrimaryDestination(t *testing.T) {
	config := baseConfig()
	config.OutputFormat = models.OutputFormatUDP
	config.OutputDir = ""
	config.OutputURL = "udp://239.0.0.1:1234"

	argv, plan, _, err := Compile(config, EnvironmentContext{})
	require.NoError(t, err)
	assert.Equal(t, OutputKindStream, plan.Kind)
	assert.Equal(t, "udp://239.0.0.1:1234", plan.DestinationURL)
	assert.Contains(t, argv, "udp://239.0.0.1:1234")
}

func TestCompile_AuxiliaryUDPAndRTMPOutputs(t *testing.T) {
	config := baseConfig()
	config.UDPOutputs = models.StringList{"udp://239.0.0.2:5000"}
	config.RTMPOutputs = models.StringList{"rtmp://live.example.com/app/key"}

	argv, _, _, err := Compile(config, EnvironmentContext{})
	require.NoError(t, err)
	assert.Contains(t, argv, "udp://239.0.0.2:5000")
	assert.Contains(t, argv, "rtmp://live.example.com/app/key")
}

func TestCompile_CustomArgsAppendedLast(t *testing.T) {
	config := baseConfig()
	config.CustomArgs = models.StringList{"-movflags", "+faststart"}

	argv, _, _, err := Compile(config, EnvironmentContext{})
	require.NoError(t, err)
	assert.Equal(t, "-movflags", argv[len(argv)-2])
	assert.Equal(t, "+faststart", argv[len(argv)-1])
}

func TestCompile_FileOutput_UsesOutputURL(t *testing.T) {
	config := baseConfig()
	config.OutputFormat = models.OutputFormatMP4
	config.OutputDir = ""
	config.OutputURL = "/data/files/job-1/out.mp4"

	argv, plan, _, err := Compile(config, EnvironmentContext{HLSPublicURL: "https://cdn.example.com/hls"})
	require.NoError(t, err)
	assert.Equal(t, OutputKindFile, plan.Kind)
	assert.Equal(t, "/data/files/job-1/out.mp4", plan.OutputFilePath)
	assert.Equal(t, argv[len(argv)-1], "/data/files/job-1/out.mp4")
}

func TestCompile_InvalidConfig_ReturnsValidationError(t *testing.T) {
	config := baseConfig()
	config.InputFile = ""

	_, _, _, err := Compile(config, EnvironmentContext{})
	require.Error(t, err)
}

func TestCompile_LoopInput_AddsRealtimeFlags(t *testing.T) {
	config := baseConfig()
	config.LoopInput = true

	argv, _, _, err := Compile(config, EnvironmentContext{})
	require.NoError(t, err)
	assert.Contains(t, argv, "-stream_loop")
	assert.Contains(t, argv, "-re")
}

func TestCompile_DeviceInput_AddsFormatFlag(t *testing.T) {
	config := baseConfig()
	config.InputDeviceArgs = models.StringList{"-framerate", "30"}

	argv, _, _, err := Compile(config, EnvironmentContext{})
	require.NoError(t, err)
	assert.Contains(t, argv, "v4l2")
	assert.Contains(t, argv, "-framerate")
}

func TestCompile_Deterministic(t *testing.T) {
	config := baseConfig()
	env := EnvironmentContext{HLSPublicURL: "https://cdn.example.com/hls"}

	argv1, plan1, _, err := Compile(config, env)
	require.NoError(t, err)
	argv2, plan2, _, err := Compile(config, env)
	require.NoError(t, err)

	assert.Equal(t, argv1, argv2)
	assert.Equal(t, plan1, plan2)
}
