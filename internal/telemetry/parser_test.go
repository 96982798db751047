package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/streamforge/streamforge/internal/eventbus"
	"github.com/streamforge/streamforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]*models.StatisticsSample
}

func (f *fakeSink) CreateBatch(_ context.Context, samples []*models.StatisticsSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]*models.StatisticsSample, len(samples))
	copy(batch, samples)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeSink) all() []*models.StatisticsSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.StatisticsSample
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseBurst_RecognizesProgressLine(t *testing.T) {
	line := `frame=  245 fps= 29 q=28.0 size=    1024kB time=00:00:08.15 bitrate=1030.3kbits/s speed=0.988x`
	b, ok := parseBurst(line)
	require.True(t, ok)
	assert.Equal(t, int64(245), b.frames)
	assert.InDelta(t, 29.0, b.fps, 0.01)
	assert.InDelta(t, 1030.3, b.bitrateKbps, 0.01)
	assert.InDelta(t, 0.988, b.speed, 0.001)
	assert.Equal(t, int64(8150), b.currentOffsetMs)
}

func TestParseBurst_RejectsPlainLogLine(t *testing.T) {
	_, ok := parseBurst("Input #0, rtsp, from 'rtsp://camera/1':")
	assert.False(t, ok)
}

func TestParseBurst_ExtractsDroppedFrames(t *testing.T) {
	line := `frame=  100 fps= 25 q=-1.0 size=N/A time=00:00:04.00 bitrate=N/A drop=3 speed=1.0x`
	b, ok := parseBurst(line)
	require.True(t, ok)
	assert.Equal(t, int64(3), b.droppedFrames)
}

func TestParser_Run_BatchesByCount(t *testing.T) {
	sink := &fakeSink{}
	bus := eventbus.New()
	parser := New(models.NewULID(), sink, bus, discardLogger(), WithBatchSize(2), WithBatchInterval(time.Hour))

	stats := bus.Subscribe(eventbus.TopicJobStats)
	defer stats.Close()

	var sb strings.Builder
	for i := 1; i <= 3; i++ {
		sb.WriteString("frame=" + itoa(i) + " fps=30 time=00:00:0" + itoa(i) + ".00 bitrate=500.0kbits/s speed=1.0x\n")
	}

	err := parser.Run(context.Background(), strings.NewReader(sb.String()))
	require.NoError(t, err)

	all := sink.all()
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].TotalFrames)
	assert.Equal(t, int64(3), all[2].TotalFrames)
}

func TestParser_Run_PublishesSamplesImmediately(t *testing.T) {
	sink := &fakeSink{}
	bus := eventbus.New()
	parser := New(models.NewULID(), sink, bus, discardLogger(), WithBatchSize(100), WithBatchInterval(time.Hour))

	stats := bus.Subscribe(eventbus.TopicJobStats)
	defer stats.Close()

	input := "frame=10 fps=30 time=00:00:01.00 bitrate=500.0kbits/s speed=1.0x\n"
	go func() {
		_ = parser.Run(context.Background(), strings.NewReader(input))
	}()

	select {
	case ev := <-stats.Events():
		sample, ok := ev.Payload.(*models.StatisticsSample)
		require.True(t, ok)
		assert.Equal(t, int64(10), sample.TotalFrames)
	case <-time.After(time.Second):
		t.Fatal("did not receive stats event before batching flushed")
	}
}

func TestParser_Run_ForwardsLogLinesToWriter(t *testing.T) {
	sink := &fakeSink{}
	bus := eventbus.New()
	var logBuf bytes.Buffer
	parser := New(models.NewULID(), sink, bus, discardLogger(), WithLogWriter(&logBuf))

	input := "Input #0, rtsp, from 'rtsp://camera/1':\nframe=1 fps=30 time=00:00:00.03 bitrate=1.0kbits/s speed=1.0x\n"
	err := parser.Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Contains(t, logBuf.String(), "Input #0, rtsp")
	assert.NotContains(t, logBuf.String(), "frame=1")
}

func TestParser_Run_ForwardsLogLineToBusWhenSubscribed(t *testing.T) {
	sink := &fakeSink{}
	bus := eventbus.New()
	parser := New(models.NewULID(), sink, bus, discardLogger())

	logSub := bus.Subscribe(eventbus.TopicJobLog)
	defer logSub.Close()

	input := "some diagnostic message\n"
	go func() {
		_ = parser.Run(context.Background(), strings.NewReader(input))
	}()

	select {
	case ev := <-logSub.Events():
		assert.Equal(t, "some diagnostic message", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("log line was not forwarded to subscribed bus topic")
	}
}

func TestParser_Run_MonotonicTimestamps(t *testing.T) {
	sink := &fakeSink{}
	bus := eventbus.New()
	parser := New(models.NewULID(), sink, bus, discardLogger(), WithBatchSize(1000), WithBatchInterval(time.Hour))

	input := "frame=1 fps=30 time=00:00:01.00 bitrate=1.0kbits/s speed=1.0x\n" +
		"frame=2 fps=30 time=00:00:02.00 bitrate=1.0kbits/s speed=1.0x\n" +
		"frame=3 fps=30 time=00:00:03.00 bitrate=1.0kbits/s speed=1.0x\n"

	err := parser.Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	all := sink.all()
	require.Len(t, all, 3)
	assert.Less(t, all[0].Timestamp, all[1].Timestamp)
	assert.Less(t, all[1].Timestamp, all[2].Timestamp)
}

func TestParser_ErrorTail_ReturnsLastLines(t *testing.T) {
	sink := &fakeSink{}
	bus := eventbus.New()
	parser := New(models.NewULID(), sink, bus, discardLogger())

	var sb strings.Builder
	for i := 0; i < DefaultErrorTailLines+10; i++ {
		sb.WriteString("log line " + itoa(i) + "\n")
	}

	err := parser.Run(context.Background(), strings.NewReader(sb.String()))
	require.NoError(t, err)

	tail := parser.ErrorTail()
	lines := strings.Split(tail, "\n")
	assert.Len(t, lines, DefaultErrorTailLines)
	assert.Equal(t, "log line 49", lines[len(lines)-1])
}

func TestParser_Run_MalformedBurstIsTreatedAsLogLine(t *testing.T) {
	sink := &fakeSink{}
	bus := eventbus.New()
	var logBuf bytes.Buffer
	parser := New(models.NewULID(), sink, bus, discardLogger(), WithLogWriter(&logBuf))

	input := "frame=notanumber time=garbage\n"
	err := parser.Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Empty(t, sink.all())
	assert.Contains(t, logBuf.String(), "frame=notanumber")
}

func itoa(i int) string {
	digits := "0123456789"
	if i == 0 {
		return "0"
	}
	var out []byte
	for i > 0 {
		out = append([]byte{digits[i%10]}, out...)
		i /= 10
	}
	return string(out)
}
