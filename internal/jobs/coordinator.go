package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jhu-ep/gradcafe-pipeline/internal/analysis"
	"github.com/jhu-ep/gradcafe-pipeline/internal/metrics"
	"github.com/jhu-ep/gradcafe-pipeline/internal/pipeline"
)

// ErrAlreadyRunning is returned when a pull or analysis request arrives
// while a pull job is active. It is a user-facing rejection, not a crash.
var ErrAlreadyRunning = errors.New("pull job already running")

// Status messages surfaced to the dashboard.
const (
	msgPulling         = "Pulling new data... please wait (running in background)."
	msgAnalysisUpdated = "Analysis updated."
)

// Runner executes one full pipeline pass.
type Runner interface {
	Run(ctx context.Context) (pipeline.Report, error)
}

// Analyzer recomputes the dashboard summary from the store.
type Analyzer interface {
	Summary(ctx context.Context) ([]analysis.Result, error)
}

// Coordinator exposes pipeline execution as a single background job: at
// most one run is active at a time, a second request is rejected rather
// than queued, and there is no mid-run cancellation.
type Coordinator struct {
	baseCtx  context.Context
	state    *PullState
	cache    *ResultsCache
	runner   Runner
	analyzer Analyzer
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewCoordinator builds a Coordinator. baseCtx bounds the lifetime of
// background pulls (typically the process signal context).
func NewCoordinator(baseCtx context.Context, runner Runner, analyzer Analyzer, logger *zap.Logger) *Coordinator {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		baseCtx:  baseCtx,
		state:    &PullState{},
		cache:    &ResultsCache{},
		runner:   runner,
		analyzer: analyzer,
		logger:   logger,
	}
}

// RequestPull starts the pipeline on a background goroutine and returns
// immediately. When a pull is already running it refuses with
// ErrAlreadyRunning and starts nothing.
func (c *Coordinator) RequestPull() error {
	if !c.state.TryStart(msgPulling) {
		metrics.ObservePullJob("rejected")
		return ErrAlreadyRunning
	}
	c.wg.Add(1)
	go c.runPull()
	return nil
}

// runPull is the job boundary: any error or panic inside the run is
// captured into the status message, and running is cleared on every path.
func (c *Coordinator) runPull() {
	defer c.wg.Done()

	msg := "Pull failed: unexpected termination"
	status := "failed"
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("Pull failed: %v", r)
			status = "panicked"
			c.logger.Error("pull job panicked", zap.Any("panic", r))
		}
		c.state.Finish(msg)
		metrics.ObservePullJob(status)
	}()

	report, err := c.runner.Run(c.baseCtx)
	if err != nil {
		msg = "Pull failed: " + err.Error()
		c.logger.Error("pull job failed", zap.Error(err))
		return
	}
	msg = fmt.Sprintf("Pull complete! %d new rows added (%d total).",
		report.RecordsInserted, report.TotalRows)
	status = "succeeded"
}

// RequestUpdateAnalysis recomputes the summary and overwrites the results
// cache. It refuses while a pull is running. The recomputation runs
// outside the state lock so status reads are never blocked by a slow
// query pass; the snapshot reflects the store as of this invocation.
func (c *Coordinator) RequestUpdateAnalysis(ctx context.Context) error {
	if running, _ := c.state.Snapshot(); running {
		return ErrAlreadyRunning
	}

	results, err := c.analyzer.Summary(ctx)
	if err != nil {
		c.state.SetMessage("Analysis failed: " + err.Error())
		return fmt.Errorf("recompute analysis: %w", err)
	}

	c.cache.Set(results)
	c.state.SetMessage(msgAnalysisUpdated)
	return nil
}

// Status returns the current running flag and message for the dashboard.
func (c *Coordinator) Status() (running bool, message string) {
	return c.state.Snapshot()
}

// Results returns the cached analysis snapshot.
func (c *Coordinator) Results() ([]analysis.Result, bool, time.Time) {
	return c.cache.Snapshot()
}

// Wait blocks until any in-flight background pull finishes. Used by
// shutdown and tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
