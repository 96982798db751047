// Package telemetry implements the Telemetry Parser (spec.md §4.5): it
// reads an encoder's stderr line by line, recognizes progress bursts,
// persists batched StatisticsSamples, and publishes low-latency updates on
// the event bus.
package telemetry

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"github.com/streamforge/streamforge/internal/eventbus"
	"github.com/streamforge/streamforge/internal/models"
)

// DefaultBatchSize is K in spec §4.5: samples are flushed after this many
// accumulate, whichever comes first against DefaultBatchInterval.
const DefaultBatchSize = 10

// DefaultBatchInterval is T in spec §4.5.
const DefaultBatchInterval = time.Second

// DefaultErrorTailLines is N in spec §4.4: the number of trailing stderr
// lines attached to error_message on a non-zero exit.
const DefaultErrorTailLines = 40

// BatchSink persists a batch of samples. Implemented by
// internal/repository.StatisticsRepository.
type BatchSink interface {
	CreateBatch(ctx context.Context, samples []*models.StatisticsSample) error
}

// Publisher publishes to the event bus. Implemented by *eventbus.Bus.
type Publisher interface {
	Publish(topic eventbus.Topic, payload any)
	SubscriberCount(topic eventbus.Topic) int
}

var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+)\s*kbits/s`)
	timeRe    = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
	dropRe    = regexp.MustCompile(`drop=\s*(\d+)`)
)

// burst is a parsed progress key/value line, before it is turned into a
// persisted StatisticsSample.
type burst struct {
	frames          int64
	fps             float64
	bitrateKbps     float64
	currentOffsetMs int64
	speed           float64
	droppedFrames   int64
}

// parseBurst extracts a progress burst from one stderr line. ok is false
// when the line does not look like a progress burst (spec §4.5: "frame
// and time are the load-bearing fields").
func parseBurst(line string) (burst, bool) {
	frameMatch := frameRe.FindStringSubmatch(line)
	timeMatch := timeRe.FindStringSubmatch(line)
	if frameMatch == nil || timeMatch == nil {
		return burst{}, false
	}

	var b burst
	b.frames, _ = strconv.ParseInt(frameMatch[1], 10, 64)

	hours, _ := strconv.Atoi(timeMatch[1])
	mins, _ := strconv.Atoi(timeMatch[2])
	secs, _ := strconv.Atoi(timeMatch[3])
	centis, _ := strconv.Atoi(timeMatch[4])
	b.currentOffsetMs = int64(hours)*3600_000 + int64(mins)*60_000 + int64(secs)*1000 + int64(centis)*10

	if m := fpsRe.FindStringSubmatch(line); m != nil {
		b.fps, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := bitrateRe.FindStringSubmatch(line); m != nil {
		b.bitrateKbps, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		b.speed, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := dropRe.FindStringSubmatch(line); m != nil {
		b.droppedFrames, _ = strconv.ParseInt(m[1], 10, 64)
	}

	return b, true
}

// ringBuffer keeps the last N lines seen, used to populate error_message
// on a non-zero exit (spec §4.4).
type ringBuffer struct {
	mu    sync.Mutex
	lines []string
	cap   int
	next  int
	full  bool
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{lines: make([]string, capacity), cap: capacity}
}

func (r *ringBuffer) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.full = true
	}
}

func (r *ringBuffer) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]string, r.cap)
	copy(out, r.lines[r.next:])
	copy(out[r.cap-r.next:], r.lines[:r.next])
	return out
}

// Parser consumes one job's encoder stderr stream.
type Parser struct {
	jobID  models.ULID
	sink   BatchSink
	bus    Publisher
	logger *slog.Logger

	logWriter io.Writer

	batchSize     int
	batchInterval time.Duration

	proc *process.Process

	tail *ringBuffer

	mu        sync.Mutex
	pending   []*models.StatisticsSample
	lastTS    int64
}

// Option configures a Parser at construction.
type Option func(*Parser)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(p *Parser) { p.batchSize = n }
}

// WithBatchInterval overrides DefaultBatchInterval.
func WithBatchInterval(d time.Duration) Option {
	return func(p *Parser) { p.batchInterval = d }
}

// WithLogWriter sets the per-job append-mode log file writer that every
// non-progress line is copied to; progress bursts are not written to it.
func WithLogWriter(w io.Writer) Option {
	return func(p *Parser) { p.logWriter = w }
}

// WithProcessStats attaches CPU/memory sampling for pid via gopsutil.
// Omit in tests or when the process cannot be resolved; samples are then
// persisted with zeroed CPU/memory fields.
func WithProcessStats(pid int) Option {
	return func(p *Parser) {
		proc, err := process.NewProcess(int32(pid))
		if err == nil {
			p.proc = proc
		}
	}
}

// New creates a Parser for one job's stderr stream.
func New(jobID models.ULID, sink BatchSink, bus Publisher, logger *slog.Logger, opts ...Option) *Parser {
	p := &Parser{
		jobID:         jobID,
		sink:          sink,
		bus:           bus,
		logger:        logger.With("component", "telemetry_parser", "job_id", jobID.String()),
		batchSize:     DefaultBatchSize,
		batchInterval: DefaultBatchInterval,
		tail:          newRingBuffer(DefaultErrorTailLines),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run scans r line by line until EOF or ctx is cancelled, batching and
// publishing samples as it goes. It always flushes any partial batch
// before returning. A malformed burst is logged and treated as a log line
// rather than aborting the scan (spec §4.5: "resilient").
func (p *Parser) Run(ctx context.Context, r io.Reader) error {
	flushTicker := time.NewTicker(p.batchInterval)
	defer flushTicker.Stop()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			p.flush(context.Background())
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				p.flush(context.Background())
				return <-scanErr
			}
			p.handleLine(ctx, line)
		case <-flushTicker.C:
			p.flush(ctx)
		}
	}
}

func (p *Parser) handleLine(ctx context.Context, line string) {
	p.tail.add(line)

	b, ok := parseBurst(line)
	if !ok {
		p.forwardLogLine(line)
		return
	}

	sample := p.toSample(b)
	p.bus.Publish(eventbus.TopicJobStats, sample)

	p.mu.Lock()
	p.pending = append(p.pending, sample)
	shouldFlush := len(p.pending) >= p.batchSize
	p.mu.Unlock()

	if shouldFlush {
		p.flush(ctx)
	}
}

// forwardLogLine writes a non-burst line to the job's log file and, when a
// subscriber is attached to the log topic, onto the event bus (spec §4.5).
func (p *Parser) forwardLogLine(line string) {
	if p.logWriter != nil {
		_, _ = io.WriteString(p.logWriter, line+"\n")
	}
	if p.bus.SubscriberCount(eventbus.TopicJobLog) > 0 {
		p.bus.Publish(eventbus.TopicJobLog, line)
	}
}

// toSample converts a parsed burst into a StatisticsSample, attaching a
// strictly monotonic timestamp and the latest per-process resource usage.
func (p *Parser) toSample(b burst) *models.StatisticsSample {
	p.mu.Lock()
	ts := time.Now().UnixMilli()
	if ts <= p.lastTS {
		ts = p.lastTS + 1
	}
	p.lastTS = ts
	p.mu.Unlock()

	sample := &models.StatisticsSample{
		JobID:               p.jobID,
		Timestamp:           ts,
		FPS:                 b.fps,
		BitrateBPS:          int64(b.bitrateKbps * 1000),
		DroppedFrames:       b.droppedFrames,
		Speed:               b.speed,
		TotalFrames:         b.frames,
		CurrentTimeOffsetMs: b.currentOffsetMs,
	}

	if p.proc != nil {
		if cpu, err := p.proc.CPUPercent(); err == nil {
			sample.CPUPercent = cpu
		}
		if mem, err := p.proc.MemoryInfo(); err == nil && mem != nil {
			sample.MemoryMB = float64(mem.RSS) / (1024 * 1024)
		}
	}

	return sample
}

// flush persists any pending samples and resets the batch.
func (p *Parser) flush(ctx context.Context) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	if err := p.sink.CreateBatch(ctx, batch); err != nil {
		p.logger.Error("persisting statistics batch", "error", err, "count", len(batch))
	}
}

// ErrorTail returns the last DefaultErrorTailLines stderr lines seen,
// joined with newlines, for populating Job.ErrorMessage on a non-zero exit.
func (p *Parser) ErrorTail() string {
	return strings.Join(p.tail.snapshot(), "\n")
}
