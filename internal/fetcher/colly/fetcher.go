// Package collyfetcher implements pipeline.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jhu-ep/gradcafe-pipeline/internal/pipeline"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher performs single-page GETs through a Colly collector. HTTP-level
// failures (4xx/5xx) are returned as data so the caller can apply its
// per-field skip-on-failure policy; only transport failures are errors.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher. Robots enforcement is disabled on the collector
// because the pipeline performs its own policy check once per run, before
// any fetch.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	// Retries revisit the same listing URL.
	c.AllowURLRevisit = true
	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET.
func (f *Fetcher) Fetch(ctx context.Context, url string) (pipeline.FetchResponse, error) {
	var (
		result   pipeline.FetchResponse
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = pipeline.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			// HTTP-level failure: surface as data, not as an error.
			result = pipeline.FetchResponse{
				URL:        url,
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
			}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return pipeline.FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case visitErr := <-done:
		if fetchErr != nil {
			return pipeline.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
		}
		if result.StatusCode != 0 {
			return result, nil
		}
		if visitErr != nil {
			return pipeline.FetchResponse{}, fmt.Errorf("visit %s: %w", url, visitErr)
		}
		return pipeline.FetchResponse{}, fmt.Errorf("fetch %s: no response received", url)
	}
}
