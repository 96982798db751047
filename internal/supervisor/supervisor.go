// Package supervisor implements the Supervisor (spec.md §4.4): the
// authoritative in-memory map of running encoder processes, admission
// control, spawn/termination contracts, and orphan reaping at boot.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode"

	"github.com/streamforge/streamforge/internal/compiler"
	"github.com/streamforge/streamforge/internal/eventbus"
	"github.com/streamforge/streamforge/internal/ffmpeg"
	"github.com/streamforge/streamforge/internal/models"
	"github.com/streamforge/streamforge/internal/storage"
	"github.com/streamforge/streamforge/internal/telemetry"
)

// DefaultStopGrace is STOP_GRACE_SECONDS' default (spec §4.4).
const DefaultStopGrace = 10 * time.Second

// DefaultSpawnDeadline is the default spawn deadline kept by New and
// WithSpawnDeadline. spawn does not apply it: a started process that writes
// no stderr and does not exit stays running, and is not treated as failed.
const DefaultSpawnDeadline = 30 * time.Second

// JobRepository is the subset of repository.JobRepository the Supervisor
// depends on.
type JobRepository interface {
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	GetRunning(ctx context.Context) ([]*models.Job, error)
	UpdateCachedCommand(ctx context.Context, jobID models.ULID, command, fullConfig string) error
	TransitionToRunning(ctx context.Context, jobID models.ULID, pid int, command string) error
	TransitionToStopped(ctx context.Context, jobID models.ULID) error
	TransitionToCompleted(ctx context.Context, jobID models.ULID) error
	TransitionToError(ctx context.Context, jobID models.ULID, message string) error
}

// StatusEvent is published on eventbus.TopicJobStatus.
type StatusEvent struct {
	JobID  models.ULID     `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

// runningProcess is one entry of the authoritative running-jobs map.
type runningProcess struct {
	cmd       *ffmpeg.Command
	startedAt time.Time
	cancel     context.CancelFunc
	parser     *telemetry.Parser
	logFile    *os.File
	done       chan struct{}
	parserDone chan struct{}
}

// Supervisor owns the running-jobs map and the spawn/stop/reap contracts.
type Supervisor struct {
	mu      sync.Mutex
	running map[models.ULID]*runningProcess

	maxConcurrent int
	stopGrace     time.Duration
	spawnDeadline time.Duration

	jobs     JobRepository
	stats    telemetry.BatchSink
	bus      *eventbus.Bus
	env      compiler.EnvironmentContext
	logDir   string
	logger   *slog.Logger
	hlsBox   *storage.Sandbox
	filesBox *storage.Sandbox
}

// Option configures a Supervisor at construction.
type Option func(*Supervisor)

// WithStopGrace overrides DefaultStopGrace.
func WithStopGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.stopGrace = d }
}

// WithSpawnDeadline overrides DefaultSpawnDeadline.
func WithSpawnDeadline(d time.Duration) Option {
	return func(s *Supervisor) { s.spawnDeadline = d }
}

// New creates a Supervisor. maxConcurrent is MAX_CONCURRENT_JOBS (spec §6);
// logDir is the root directory per-job encoder log files are written
// beneath.
func New(jobs JobRepository, stats telemetry.BatchSink, bus *eventbus.Bus, env compiler.EnvironmentContext, logDir string, maxConcurrent int, logger *slog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		running:       make(map[models.ULID]*runningProcess),
		maxConcurrent: maxConcurrent,
		stopGrace:     DefaultStopGrace,
		spawnDeadline: DefaultSpawnDeadline,
		jobs:          jobs,
		stats:         stats,
		bus:           bus,
		env:           env,
		logDir:        logDir,
		logger:        logger.With("component", "supervisor"),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Sandboxes are a second, independent containment check on top of the
	// compiler's own restricted-path validation (spec §4.2) — belt and
	// suspenders against a plan that somehow computed a path outside the
	// operator-configured output roots.
	if env.BaseHLSDir != "" {
		if box, err := storage.NewSandbox(env.BaseHLSDir); err != nil {
			s.logger.Warn("failed to initialize HLS output sandbox", "error", err)
		} else {
			s.hlsBox = box
		}
	}
	if env.BaseFilesDir != "" {
		if box, err := storage.NewSandbox(env.BaseFilesDir); err != nil {
			s.logger.Warn("failed to initialize file output sandbox", "error", err)
		} else {
			s.filesBox = box
		}
	}

	return s
}

// RunningCount returns the number of jobs currently admitted. The
// concurrency cap is always checked against this, never a cached counter
// (spec §5).
func (s *Supervisor) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// MaxConcurrent returns the configured concurrency ceiling (MAX_CONCURRENT_JOBS).
func (s *Supervisor) MaxConcurrent() int {
	return s.maxConcurrent
}

// IsRunning reports whether jobID is in the authoritative running map.
func (s *Supervisor) IsRunning(jobID models.ULID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[jobID]
	return ok
}

// Start admits and spawns jobID's encoder process (spec §4.4 spawn
// contract). Returns models.ErrAtCapacity if MAX_CONCURRENT_JOBS is
// already reached, or models.ErrJobRunning if the job is already admitted.
func (s *Supervisor) Start(ctx context.Context, jobID models.ULID) error {
	s.mu.Lock()
	if _, ok := s.running[jobID]; ok {
		s.mu.Unlock()
		return models.ErrJobRunning
	}
	if len(s.running) >= s.maxConcurrent {
		s.mu.Unlock()
		return models.ErrAtCapacity
	}
	// Reserve the slot before releasing the lock so a concurrent Start for
	// a different job cannot race past the cap while this one spawns.
	s.running[jobID] = &runningProcess{done: make(chan struct{})}
	s.mu.Unlock()

	if err := s.spawn(ctx, jobID); err != nil {
		s.mu.Lock()
		delete(s.running, jobID)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Supervisor) spawn(ctx context.Context, jobID models.ULID) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading job: %w", err)
	}
	if job.UnifiedConfig == nil {
		return fmt.Errorf("job %s has no config", jobID)
	}

	var argv []string
	var plan compiler.OutputPlan
	if job.CommandOverride != "" {
		// The user-edited override replaces the compiled command verbatim;
		// the compiler still runs, but only for the output plan, and its
		// argv is discarded (spec §4.4 step 2).
		argv = splitShellArgs(job.CommandOverride)
		_, plan, _, err = compiler.Compile(job.UnifiedConfig, s.env)
		if err != nil {
			return &models.ErrSpawn{Cause: err}
		}
	} else {
		argv, plan, _, err = compiler.Compile(job.UnifiedConfig, s.env)
		if err != nil {
			return &models.ErrSpawn{Cause: err}
		}
	}
	if len(argv) == 0 {
		return &models.ErrSpawn{Cause: fmt.Errorf("compiled command is empty")}
	}

	if err := s.prepareOutputDir(plan); err != nil {
		return &models.ErrSpawn{Cause: err}
	}

	logFile, err := s.openJobLog(jobID)
	if err != nil {
		return &models.ErrSpawn{Cause: err}
	}

	commandString := strings.Join(argv, " ")
	if err := s.jobs.UpdateCachedCommand(ctx, jobID, commandString, ""); err != nil {
		s.logger.Warn("caching compiled command", "job_id", jobID.String(), "error", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := &ffmpeg.Command{Binary: argv[0], Args: argv[1:]}

	stderr, err := cmd.StartWithStderr(runCtx, &syscall.SysProcAttr{Setpgid: true})
	if err != nil {
		cancel()
		_ = logFile.Close()
		return &models.ErrSpawn{Cause: err}
	}

	pid := cmd.PID()
	if err := s.jobs.TransitionToRunning(ctx, jobID, pid, commandString); err != nil {
		_ = cmd.Kill()
		cancel()
		_ = logFile.Close()
		return fmt.Errorf("recording running transition: %w", err)
	}
	s.bus.Publish(eventbus.TopicJobStatus, StatusEvent{JobID: jobID, Status: models.JobStatusRunning})

	parser := telemetry.New(jobID, s.stats, s.bus, s.logger, telemetry.WithLogWriter(logFile), telemetry.WithProcessStats(pid))

	rp := &runningProcess{
		cmd:        cmd,
		startedAt:  time.Now(),
		cancel:     cancel,
		parser:     parser,
		logFile:    logFile,
		done:       make(chan struct{}),
		parserDone: make(chan struct{}),
	}
	s.mu.Lock()
	s.running[jobID] = rp
	s.mu.Unlock()

	go func() {
		defer close(rp.parserDone)
		_ = parser.Run(runCtx, stderr)
	}()
	go s.waitAndReconcile(jobID, rp)

	if plan.Kind == compiler.OutputKindHLS && !job.UnifiedConfig.ABREnabled &&
		job.UnifiedConfig.SegmentType != models.SegmentTypeFMP4 {
		go s.checkFirstSegment(runCtx, jobID, plan)
	}

	return nil
}

// checkFirstSegment polls briefly for the job's first HLS segment to appear
// and performs an opportunistic MPEG-TS sanity peek on it. This is advisory
// only: a failure is logged at warning level and never affects job state.
func (s *Supervisor) checkFirstSegment(ctx context.Context, jobID models.ULID, plan compiler.OutputPlan) {
	pattern := plan.SegmentPattern
	if pattern == "" {
		return
	}
	path := filepath.Join(plan.BaseDir, fmt.Sprintf(pattern, 0))

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for i := 0; i < 15; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := telemetry.CheckMPEGTSSegment(path); err != nil {
				s.logger.Warn("hls segment sanity check failed", "job_id", jobID.String(), "path", path, "error", err)
			}
			return
		}
	}
}

// waitAndReconcile blocks on process exit and transitions the job to its
// terminal state (spec §4.4 termination contract).
func (s *Supervisor) waitAndReconcile(jobID models.ULID, rp *runningProcess) {
	defer close(rp.done)
	err := rp.cmd.Wait()
	_ = rp.logFile.Close()

	// Wait for the stderr parser to drain and flush its final batch before
	// publishing the terminal status event, so that "terminal status
	// published after all stats for that run" (spec §5) holds even though
	// the waiter and the parser are independent goroutines.
	<-rp.parserDone

	s.mu.Lock()
	// Only clear the entry if it is still the one we started with — a
	// concurrent ForceKill/Stop may have already replaced or removed it.
	if current, ok := s.running[jobID]; ok && current == rp {
		delete(s.running, jobID)
	}
	s.mu.Unlock()

	ctx := context.Background()
	if err == nil {
		_ = s.jobs.TransitionToCompleted(ctx, jobID)
		s.bus.Publish(eventbus.TopicJobStatus, StatusEvent{JobID: jobID, Status: models.JobStatusCompleted})
		return
	}

	exitErr, isExit := err.(*exec.ExitError)
	if isExit && wasSignaled(exitErr) {
		// Killed by our own Stop/ForceKill — terminal state already decided
		// by the caller (stopped). Nothing further to reconcile here.
		return
	}

	message := "encoder exited with an error"
	if rp.parser != nil {
		message = rp.parser.ErrorTail()
	}
	_ = s.jobs.TransitionToError(ctx, jobID, message)
	s.bus.Publish(eventbus.TopicJobStatus, StatusEvent{JobID: jobID, Status: models.JobStatusError})
}

// Stop sends a graceful termination signal to jobID's process group, waits
// up to the configured grace period, then force-kills (spec §4.4).
func (s *Supervisor) Stop(ctx context.Context, jobID models.ULID) error {
	s.mu.Lock()
	rp, ok := s.running[jobID]
	s.mu.Unlock()
	if !ok {
		return &models.ErrNotFound{Kind: "running_job", ID: jobID.String()}
	}

	pgid := rp.cmd.PID()
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-rp.done:
	case <-time.After(s.stopGrace):
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
		<-rp.done
	}

	if err := s.jobs.TransitionToStopped(ctx, jobID); err != nil {
		return err
	}
	s.bus.Publish(eventbus.TopicJobStatus, StatusEvent{JobID: jobID, Status: models.JobStatusStopped})
	return nil
}

// ForceKill immediately SIGKILLs jobID's process group and scans the host
// for orphaned ffmpeg processes whose command line contains the job's ID,
// killing those too. Returns the number of additional processes killed.
func (s *Supervisor) ForceKill(ctx context.Context, jobID models.ULID) (int, error) {
	s.mu.Lock()
	rp, ok := s.running[jobID]
	s.mu.Unlock()
	if !ok {
		return 0, &models.ErrNotFound{Kind: "running_job", ID: jobID.String()}
	}

	pgid := rp.cmd.PID()
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	<-rp.done

	killed := s.killOrphansForJob(ctx, jobID)

	if err := s.jobs.TransitionToStopped(ctx, jobID); err != nil {
		return killed, err
	}
	s.bus.Publish(eventbus.TopicJobStatus, StatusEvent{JobID: jobID, Status: models.JobStatusStopped})
	return killed, nil
}

// killOrphansForJob scans /proc for encoder processes whose argv references
// the job's output tag but that are not the process the Supervisor itself
// manages. Linux-only; a no-op elsewhere. Never touches processes not
// matching the tag (spec §4.4: "never kill processes not owned by the
// engine").
func (s *Supervisor) killOrphansForJob(_ context.Context, jobID models.ULID) int {
	tag := jobID.String()
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0
	}

	killed := 0
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		cmdline, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "cmdline"))
		if err != nil {
			continue
		}
		argv := strings.Split(string(cmdline), "\x00")
		if !strings.Contains(strings.Join(argv, " "), "ffmpeg") {
			continue
		}
		if !strings.Contains(strings.Join(argv, " "), tag) {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGKILL); err == nil {
			killed++
		}
	}
	return killed
}

// ReapOrphans reconciles DB state with OS process state at boot (spec
// §4.4): any job recorded as running whose pid no longer exists is moved
// to error. Live processes not claimed by any job are left untouched.
func (s *Supervisor) ReapOrphans(ctx context.Context) (int, error) {
	runningJobs, err := s.jobs.GetRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing running jobs: %w", err)
	}

	reaped := 0
	for _, job := range runningJobs {
		if job.PID == nil || !processAlive(*job.PID) {
			if err := s.jobs.TransitionToError(ctx, job.ID, "process missing on restart"); err != nil {
				s.logger.Error("reaping orphaned job", "job_id", job.ID.String(), "error", err)
				continue
			}
			reaped++
		}
	}
	return reaped, nil
}

// AutoRestart sequentially re-starts jobs last seen running with a valid
// saved command, respecting the concurrency cap (spec §4.4 optional
// boot-time auto-restart). Intended to run after ReapOrphans.
func (s *Supervisor) AutoRestart(ctx context.Context) (int, error) {
	runningJobs, err := s.jobs.GetRunning(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing running jobs: %w", err)
	}

	started := 0
	for _, job := range runningJobs {
		if s.RunningCount() >= s.maxConcurrent {
			s.logger.Warn("auto-restart stopped: at capacity", "remaining", len(runningJobs)-started)
			break
		}
		if err := s.Start(ctx, job.ID); err != nil {
			s.logger.Error("auto-restarting job", "job_id", job.ID.String(), "error", err)
			continue
		}
		started++
	}
	return started, nil
}

func (s *Supervisor) openJobLog(jobID models.ULID) (*os.File, error) {
	if err := os.MkdirAll(s.logDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	path := filepath.Join(s.logDir, jobID.String()+".log")
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// prepareOutputDir idempotently creates the directory the compiled plan
// writes artifacts into, checking it against the sandbox for its output
// kind first when one was initialized.
func (s *Supervisor) prepareOutputDir(plan compiler.OutputPlan) error {
	var dir string
	var box *storage.Sandbox
	switch plan.Kind {
	case compiler.OutputKindHLS:
		dir = plan.BaseDir
		box = s.hlsBox
	case compiler.OutputKindFile:
		dir = filepath.Dir(plan.OutputFilePath)
		box = s.filesBox
	default:
		return nil
	}
	if dir == "" {
		return nil
	}

	if box != nil {
		rel, err := filepath.Rel(box.BaseDir(), dir)
		if err != nil {
			return fmt.Errorf("resolving output dir against sandbox: %w", err)
		}
		if _, err := box.ResolvePath(rel); err != nil {
			return fmt.Errorf("output dir rejected by sandbox: %w", err)
		}
	}

	return os.MkdirAll(dir, 0o755)
}

// processAlive reports whether pid refers to a live process, using
// signal 0 which performs existence/permission checks without delivering
// anything (the standard POSIX liveness probe).
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil
}

// wasSignaled reports whether the process ended because of a signal
// (our own Stop/ForceKill), as opposed to a natural non-zero exit code.
func wasSignaled(exitErr *exec.ExitError) bool {
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return false
	}
	return status.Signaled()
}

// splitShellArgs performs a quote-aware whitespace split of a user-supplied
// command override string, mirroring the escaping rules of
// internal/ffmpeg's custom-flag parser.
func splitShellArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)
	escaped := false

	for _, r := range s {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"' || r == '\'':
			if !inQuote {
				inQuote = true
				quoteChar = r
			} else if r == quoteChar {
				inQuote = false
			} else {
				current.WriteRune(r)
			}
		case unicode.IsSpace(r) && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}
