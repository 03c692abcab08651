// Package robots implements the pre-flight site-policy check.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/jhu-ep/gradcafe-pipeline/internal/pipeline"
)

// Checker fetches and evaluates a host's robots.txt against the target
// path before a pipeline run begins.
type Checker struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewChecker builds a policy checker respecting the config toggle. With
// respect disabled it returns an allow-all policy.
func NewChecker(respect bool, userAgent string, timeout time.Duration, logger *zap.Logger) pipeline.Policy {
	if !respect {
		return allowAll{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Allowed fetches <host>/robots.txt and tests the target path for the
// configured user agent. An unreachable robots.txt allows the run; a
// malformed base URL does not.
func (c *Checker) Allowed(ctx context.Context, baseURL, targetPath string) (bool, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return false, fmt.Errorf("invalid base URL %q", baseURL)
	}

	data, err := c.load(ctx, parsed)
	if err != nil {
		c.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", parsed.Host), zap.Error(err))
		return true, nil
	}

	group := data.FindGroup(c.userAgent)
	if group == nil {
		return true, nil
	}
	return group.Test(targetPath), nil
}

func (c *Checker) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := *parsed
	robotsURL.Path = path.Join("/", "robots.txt")
	robotsURL.RawQuery = ""
	robotsURL.Fragment = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close robots response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

type allowAll struct{}

func (allowAll) Allowed(context.Context, string, string) (bool, error) { return true, nil }
