package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/streamforge/streamforge/internal/eventbus"
	"github.com/streamforge/streamforge/internal/models"
	"github.com/streamforge/streamforge/internal/supervisor"
)

// ProgressHandler streams job.status, job.stats, and job.log events from the
// bus to SSE clients. It carries no REST surface of its own; job state reads
// go through JobHandler instead.
type ProgressHandler struct {
	bus               *eventbus.Bus
	heartbeatInterval time.Duration
}

// NewProgressHandler creates a new progress handler over bus.
func NewProgressHandler(bus *eventbus.Bus) *ProgressHandler {
	return &ProgressHandler{
		bus:               bus,
		heartbeatInterval: 30 * time.Second,
	}
}

// SetHeartbeatInterval sets the SSE heartbeat interval (for testing).
func (h *ProgressHandler) SetHeartbeatInterval(interval time.Duration) {
	h.heartbeatInterval = interval
}

// statusEventData is the JSON shape for a job.status event.
type statusEventData struct {
	JobID  models.ULID      `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

// RegisterSSE registers the SSE endpoint on a chi-compatible router.
// Huma doesn't support streaming responses natively, so this is wired
// directly on the underlying mux alongside the generated API routes.
func (h *ProgressHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/jobs/events", h.handleSSEEvents)
}

// HandleSSEEvents is the raw HTTP handler for SSE streaming, exported for
// direct use with custom routers.
func (h *ProgressHandler) HandleSSEEvents(w http.ResponseWriter, r *http.Request) {
	h.handleSSEEvents(w, r)
}

// handleSSEEvents multiplexes the three job topics into one stream. An
// optional job_id query parameter drops events for every other job before
// they hit the wire.
func (h *ProgressHandler) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	SetDefaultCORSHeaders(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var jobFilter *models.ULID
	if raw := r.URL.Query().Get("job_id"); raw != "" {
		if id, err := models.ParseULID(raw); err == nil {
			jobFilter = &id
		}
	}

	statusSub := h.bus.Subscribe(eventbus.TopicJobStatus)
	defer statusSub.Close()
	statsSub := h.bus.Subscribe(eventbus.TopicJobStats)
	defer statsSub.Close()
	logSub := h.bus.Subscribe(eventbus.TopicJobLog)
	defer logSub.Close()

	rc := http.NewResponseController(w)

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		slog.Error("failed to flush initial SSE connection", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				slog.Debug("heartbeat flush failed, client likely disconnected", "error", err)
				return
			}

		case ev, ok := <-statusSub.Events():
			if !ok {
				return
			}
			status, ok := ev.Payload.(supervisor.StatusEvent)
			if !ok {
				continue
			}
			if jobFilter != nil && status.JobID != *jobFilter {
				continue
			}
			if !h.write(w, rc, "job.status", statusEventData{JobID: status.JobID, Status: status.Status}) {
				return
			}

		case ev, ok := <-statsSub.Events():
			if !ok {
				return
			}
			sample, ok := ev.Payload.(*models.StatisticsSample)
			if !ok {
				continue
			}
			if jobFilter != nil && sample.JobID != *jobFilter {
				continue
			}
			if !h.write(w, rc, "job.stats", sample) {
				return
			}

		case ev, ok := <-logSub.Events():
			if !ok {
				return
			}
			line, ok := ev.Payload.(string)
			if !ok {
				continue
			}
			// job.log carries no job ID on the wire (see telemetry.Parser),
			// so a job_id filter drops it entirely rather than guess wrong.
			if jobFilter != nil {
				continue
			}
			if !h.write(w, rc, "job.log", line) {
				return
			}
		}
	}
}

// write marshals data as a named SSE event and flushes it. It returns false
// when the connection should be torn down (marshal failure, write failure,
// or a failed flush indicating a disconnected client).
func (h *ProgressHandler) write(w http.ResponseWriter, rc *http.ResponseController, eventType string, data any) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		slog.Error("failed to marshal SSE event", "event_type", eventType, "error", err)
		return true
	}

	message := fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, payload)
	messageBytes := []byte(message)

	n, err := w.Write(messageBytes)
	if err != nil {
		slog.Debug("SSE write failed, client likely disconnected", "event_type", eventType, "error", err)
		return false
	}
	if n < len(messageBytes) {
		slog.Error("SSE short write detected", "expected", len(messageBytes), "written", n, "event_type", eventType)
		return false
	}

	if err := rc.Flush(); err != nil {
		slog.Debug("SSE flush failed, client likely disconnected", "event_type", eventType, "error", err)
		return false
	}
	return true
}
