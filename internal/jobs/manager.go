package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"driplink/internal/overlay"
	"driplink/internal/pkg/errors"
	"driplink/internal/pkg/logger"
	"driplink/internal/render"
)

// Renderer executes one render: the base input plus overlays composited
// into outputPath, reporting fractional progress through sink. The
// production implementation is render.Invoker.
type Renderer interface {
	Render(ctx context.Context, inputPath string, overlays []overlay.Overlay, assets map[string]string, outputPath string, sink render.ProgressFunc) error
}

// task is one queued render, carrying everything a worker needs.
type task struct {
	jobID     string
	inputPath string
	overlays  []overlay.Overlay
	assets    map[string]string
}

// Config holds the manager's deployment-time settings.
type Config struct {
	// Workers is the fixed pool size. Defaults to 2.
	Workers int
	// OutputRoot is the directory under which each job gets its output
	// subdirectory.
	OutputRoot string
	// Renderer performs the actual transcoding.
	Renderer Renderer
	// Log is the base logger.
	Log *logger.Logger
}

// Manager owns the job record set for its process lifetime. Records are
// ephemeral: nothing survives a restart, jobs are never evicted, and a
// submitted job always runs to completion or failure (no cancellation).
type Manager struct {
	renderer   Renderer
	outputRoot string
	log        *logger.Logger

	mu   sync.Mutex
	jobs map[string]*Job

	// The pool's FIFO queue is unbounded; submission never blocks.
	queueMu sync.Mutex
	queueCh *sync.Cond
	queue   []task
	closed  bool

	wg sync.WaitGroup
}

// NewManager creates a Manager and starts its worker pool.
func NewManager(cfg Config) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault()
	}

	m := &Manager{
		renderer:   cfg.Renderer,
		outputRoot: cfg.OutputRoot,
		log:        log.WithComponent("jobs"),
		jobs:       make(map[string]*Job),
	}
	m.queueCh = sync.NewCond(&m.queueMu)

	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	m.log.Info("worker pool started", "workers", workers)
	return m
}

// Start registers a new job in queued state and enqueues its render.
// It returns immediately; the job is pollable via Status right away.
func (m *Manager) Start(jobID, inputPath string, meta overlay.Metadata, assets map[string]string) {
	m.mu.Lock()
	m.jobs[jobID] = &Job{ID: jobID, Status: StatusQueued}
	m.mu.Unlock()

	m.queueMu.Lock()
	if m.closed {
		m.queueMu.Unlock()
		m.apply(jobID, Update{
			Status:   statusPtr(StatusError),
			Progress: floatPtr(1.0),
			Message:  stringPtr("render service is shutting down"),
		})
		return
	}
	m.queue = append(m.queue, task{
		jobID:     jobID,
		inputPath: inputPath,
		overlays:  meta.Overlays,
		assets:    assets,
	})
	m.queueMu.Unlock()
	m.queueCh.Signal()

	m.log.WithJobID(jobID).Info("job queued", "overlays", len(meta.Overlays))
}

// Status returns a snapshot of the job record, or false for an unknown id.
func (m *Manager) Status(jobID string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Result returns the rendered output path. It is only valid once the job
// has completed.
func (m *Manager) Result(jobID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.Status != StatusCompleted {
		return "", false
	}
	return j.ResultPath, true
}

// Close stops accepting jobs and waits for in-flight renders to finish or
// the context to expire. Queued-but-unstarted jobs are drained by the
// workers before they exit.
func (m *Manager) Close(ctx context.Context) error {
	m.queueMu.Lock()
	m.closed = true
	m.queueMu.Unlock()
	m.queueCh.Broadcast()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		m.log.Warn("worker pool drain timed out")
		return ctx.Err()
	}
}

// apply merges a partial update into the job record under the write lock.
// Unknown ids are a no-op.
func (m *Manager) apply(jobID string, u Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return
	}
	if u.Status != nil {
		j.Status = *u.Status
	}
	if u.Progress != nil {
		j.Progress = *u.Progress
	}
	if u.Message != nil {
		j.Message = *u.Message
	}
	if u.ResultPath != nil {
		j.ResultPath = *u.ResultPath
	}
}

// worker pulls tasks FIFO until the queue is closed and empty.
func (m *Manager) worker(id int) {
	defer m.wg.Done()
	log := m.log.With("worker", id)

	for {
		m.queueMu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.queueCh.Wait()
		}
		if len(m.queue) == 0 {
			m.queueMu.Unlock()
			log.Debug("worker exiting")
			return
		}
		t := m.queue[0]
		m.queue = m.queue[1:]
		m.queueMu.Unlock()

		m.runJob(t)
	}
}

// runJob is the worker body for one render. Any failure, including panics,
// lands in the job record; nothing escapes to crash the pool.
func (m *Manager) runJob(t task) {
	log := m.log.WithJobID(t.jobID)
	ctx := logger.ContextWithJobID(context.Background(), t.jobID)

	defer func() {
		if rec := recover(); rec != nil {
			m.apply(t.jobID, Update{
				Status:   statusPtr(StatusError),
				Progress: floatPtr(1.0),
				Message:  stringPtr(fmt.Sprintf("panic: %v\n%s", rec, debug.Stack())),
			})
			log.Error("job panicked", "panic", fmt.Sprint(rec))
		}
	}()

	log.Info("job started")
	m.apply(t.jobID, Update{
		Status:   statusPtr(StatusProcessing),
		Progress: floatPtr(0.05),
		Message:  stringPtr("Starting render"),
	})

	outDir := filepath.Join(m.outputRoot, t.jobID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		m.fail(t.jobID, errors.Wrap(err, "jobs.run", "create output directory"))
		return
	}
	outputPath := filepath.Join(outDir, "output.mp4")

	sink := func(p float64, msg string) {
		u := Update{Progress: &p}
		if msg != "" {
			u.Message = &msg
		}
		m.apply(t.jobID, u)
	}

	if err := m.renderer.Render(ctx, t.inputPath, t.overlays, t.assets, outputPath, sink); err != nil {
		m.fail(t.jobID, err)
		log.Error("job failed", "error", err.Error())
		return
	}

	m.apply(t.jobID, Update{
		Status:     statusPtr(StatusCompleted),
		Progress:   floatPtr(1.0),
		Message:    stringPtr("Completed"),
		ResultPath: stringPtr(outputPath),
	})
	log.Info("job completed", "result", outputPath)
}

// fail records a terminal error, keeping the failure description plus a
// captured stack trace for operator diagnosis.
func (m *Manager) fail(jobID string, err error) {
	msg := err.Error()
	var e *errors.Error
	if errors.As(err, &e) && len(e.Stack) > 0 {
		msg += "\n" + e.StackTrace()
	}

	m.apply(jobID, Update{
		Status:   statusPtr(StatusError),
		Progress: floatPtr(1.0),
		Message:  stringPtr(msg),
	})
}
