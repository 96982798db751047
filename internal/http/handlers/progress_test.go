package handlers_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamforge/streamforge/internal/eventbus"
	"github.com/streamforge/streamforge/internal/http/handlers"
	"github.com/streamforge/streamforge/internal/models"
	"github.com/streamforge/streamforge/internal/supervisor"
)

func newTestProgressHandler() (*handlers.ProgressHandler, *eventbus.Bus) {
	bus := eventbus.New()
	handler := handlers.NewProgressHandler(bus)
	return handler, bus
}

func setupProgressRouter(handler *handlers.ProgressHandler) *chi.Mux {
	router := chi.NewRouter()
	handler.RegisterSSE(router)
	return router
}

func parseSSEEvents(body string) []map[string]string {
	var events []map[string]string
	scanner := bufio.NewScanner(strings.NewReader(body))

	var currentEvent map[string]string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if currentEvent != nil {
				events = append(events, currentEvent)
				currentEvent = nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			if currentEvent == nil {
				currentEvent = make(map[string]string)
			}
			key := parts[0]
			value := strings.TrimPrefix(parts[1], " ")
			currentEvent[key] = value
		}
	}
	if currentEvent != nil {
		events = append(events, currentEvent)
	}
	return events
}

func TestProgressHandler_SSEConnection(t *testing.T) {
	handler, _ := newTestProgressHandler()
	router := setupProgressRouter(handler)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/jobs/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(done)
	}()
	<-done

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), ":connected")
}

func TestProgressHandler_ReceivesStatusEvents(t *testing.T) {
	handler, bus := newTestProgressHandler()
	router := setupProgressRouter(handler)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/jobs/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		router.ServeHTTP(rec, req)
	}()

	time.Sleep(30 * time.Millisecond)
	jobID := models.NewULID()
	bus.Publish(eventbus.TopicJobStatus, supervisor.StatusEvent{JobID: jobID, Status: models.JobStatusRunning})

	wg.Wait()

	body := rec.Body.String()
	assert.Contains(t, body, "event: job.status")
	assert.Contains(t, body, jobID.String())
	assert.Contains(t, body, "running")
}

func TestProgressHandler_ReceivesStatsEvents(t *testing.T) {
	handler, bus := newTestProgressHandler()
	router := setupProgressRouter(handler)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/jobs/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		router.ServeHTTP(rec, req)
	}()

	time.Sleep(30 * time.Millisecond)
	jobID := models.NewULID()
	bus.Publish(eventbus.TopicJobStats, &models.StatisticsSample{JobID: jobID, Timestamp: 1000, FPS: 29.97})

	wg.Wait()

	body := rec.Body.String()
	assert.Contains(t, body, "event: job.stats")
	assert.Contains(t, body, "29.97")
}

func TestProgressHandler_ReceivesLogEvents(t *testing.T) {
	handler, bus := newTestProgressHandler()
	router := setupProgressRouter(handler)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/jobs/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		router.ServeHTTP(rec, req)
	}()

	time.Sleep(30 * time.Millisecond)
	bus.Publish(eventbus.TopicJobLog, "frame=100 fps=30 bitrate=2000kbits/s")

	wg.Wait()

	body := rec.Body.String()
	assert.Contains(t, body, "event: job.log")
	assert.Contains(t, body, "frame=100")
}

func TestProgressHandler_FiltersByJobID(t *testing.T) {
	handler, bus := newTestProgressHandler()
	router := setupProgressRouter(handler)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	wanted := models.NewULID()
	other := models.NewULID()

	req := httptest.NewRequest("GET", "/api/v1/jobs/events?job_id="+wanted.String(), nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		router.ServeHTTP(rec, req)
	}()

	time.Sleep(30 * time.Millisecond)
	bus.Publish(eventbus.TopicJobStatus, supervisor.StatusEvent{JobID: other, Status: models.JobStatusRunning})
	bus.Publish(eventbus.TopicJobStatus, supervisor.StatusEvent{JobID: wanted, Status: models.JobStatusCompleted})

	wg.Wait()

	body := rec.Body.String()
	assert.Contains(t, body, wanted.String())
	assert.NotContains(t, body, other.String())
}

func TestProgressHandler_MultipleSubscribersReceiveSameEvents(t *testing.T) {
	handler, bus := newTestProgressHandler()
	router := setupProgressRouter(handler)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	req1 := httptest.NewRequest("GET", "/api/v1/jobs/events", nil).WithContext(ctx)
	rec1 := httptest.NewRecorder()
	req2 := httptest.NewRequest("GET", "/api/v1/jobs/events", nil).WithContext(ctx)
	rec2 := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		router.ServeHTTP(rec1, req1)
	}()
	go func() {
		defer wg.Done()
		router.ServeHTTP(rec2, req2)
	}()

	time.Sleep(30 * time.Millisecond)
	jobID := models.NewULID()
	bus.Publish(eventbus.TopicJobStatus, supervisor.StatusEvent{JobID: jobID, Status: models.JobStatusRunning})

	wg.Wait()

	assert.Contains(t, rec1.Body.String(), jobID.String())
	assert.Contains(t, rec2.Body.String(), jobID.String())
}

func TestProgressHandler_SSEHeartbeat(t *testing.T) {
	handler, _ := newTestProgressHandler()
	handler.SetHeartbeatInterval(50 * time.Millisecond)
	router := setupProgressRouter(handler)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/jobs/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		router.ServeHTTP(rec, req)
	}()
	wg.Wait()

	assert.Contains(t, rec.Body.String(), ":heartbeat")
}

func TestProgressHandler_ParsesSSEFrames(t *testing.T) {
	handler, bus := newTestProgressHandler()
	router := setupProgressRouter(handler)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/jobs/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		router.ServeHTTP(rec, req)
	}()

	time.Sleep(30 * time.Millisecond)
	jobID := models.NewULID()
	bus.Publish(eventbus.TopicJobStatus, supervisor.StatusEvent{JobID: jobID, Status: models.JobStatusRunning})

	wg.Wait()

	events := parseSSEEvents(rec.Body.String())
	require.NotEmpty(t, events)

	found := false
	for _, ev := range events {
		if ev["event"] == "job.status" {
			found = true
			assert.Contains(t, ev["data"], jobID.String())
		}
	}
	assert.True(t, found, "expected a job.status frame")
}
