package jobs

import (
	"sync"
	"time"

	"github.com/jhu-ep/gradcafe-pipeline/internal/analysis"
)

// ResultsCache holds the latest analysis snapshot read by the dashboard.
// It is written only by an explicit update-analysis request, never
// implicitly refreshed by a pull.
type ResultsCache struct {
	mu        sync.RWMutex
	results   []analysis.Result
	has       bool
	updatedAt time.Time
}

// Set overwrites the cached snapshot.
func (c *ResultsCache) Set(results []analysis.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append([]analysis.Result(nil), results...)
	c.has = true
	c.updatedAt = time.Now()
}

// Snapshot returns a copy of the cached results plus whether any results
// exist and when they were last updated.
func (c *ResultsCache) Snapshot() ([]analysis.Result, bool, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]analysis.Result(nil), c.results...), c.has, c.updatedAt
}
