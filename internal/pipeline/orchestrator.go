package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jhu-ep/gradcafe-pipeline/internal/metrics"
)

// Config controls a pipeline run.
type Config struct {
	BaseURL    string
	SurveyPath string
	// TargetRecords stops pagination once this many records have been
	// accumulated.
	TargetRecords int
	// PageRetries is the per-page retry budget. An exhausted page is
	// abandoned, not the whole run.
	PageRetries int
	// MaxConsecutiveFailures bounds the run when the source errors
	// persistently: after this many abandoned pages in a row the scan stops.
	MaxConsecutiveFailures int
	// Delay is the courtesy pause between listing page fetches.
	Delay time.Duration
	// JSONLPath, when set, receives the serialized records before loading.
	JSONLPath string
}

// Deps holds the collaborators for an Orchestrator.
type Deps struct {
	Fetcher   Fetcher
	Policy    Policy
	Extractor Extractor
	Parser    Parser
	Enricher  Enricher
	Loader    RecordLoader
	Archive   PageArchiver
	Logger    *zap.Logger
}

// Orchestrator drives pagination, extraction, normalization, serialization
// and loading for one run. Re-running is duplicate-safe by construction:
// the loader's insert is idempotent by URL, so no checkpoint bookkeeping
// is kept.
type Orchestrator struct {
	deps Deps
	cfg  Config
}

// New builds an Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if deps.Fetcher == nil || deps.Policy == nil || deps.Extractor == nil ||
		deps.Parser == nil || deps.Enricher == nil || deps.Loader == nil {
		return nil, errors.New("fetcher, policy, extractor, parser, enricher and loader are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.TargetRecords <= 0 {
		return nil, errors.New("target records must be > 0")
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 3
	}
	return &Orchestrator{deps: deps, cfg: cfg}, nil
}

// Run executes one full pipeline pass. Only a policy violation, a
// serialization failure, or a store failure surface as run-level errors;
// fetch and parse problems degrade to skipped pages, entries, or null
// fields.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	var report Report

	allowed, err := o.deps.Policy.Allowed(ctx, o.cfg.BaseURL, o.cfg.SurveyPath)
	if err != nil {
		return report, fmt.Errorf("policy check: %w", err)
	}
	if !allowed {
		return report, ErrPolicyViolation
	}

	records := o.paginate(ctx, &report)
	metrics.ObserveRecordsParsed(report.RecordsParsed)

	records = o.deps.Enricher.Enrich(ctx, records)

	if o.cfg.JSONLPath != "" {
		if err := WriteRecords(o.cfg.JSONLPath, records); err != nil {
			return report, fmt.Errorf("serialize records: %w", err)
		}
	}

	inserted, err := o.deps.Loader.Load(ctx, records)
	if err != nil {
		return report, fmt.Errorf("load records: %w", err)
	}
	report.RecordsInserted = inserted
	metrics.ObserveRowsInserted(inserted)

	total, err := o.deps.Loader.CountRows(ctx)
	if err != nil {
		return report, fmt.Errorf("count rows: %w", err)
	}
	report.TotalRows = total

	o.deps.Logger.Info("pull run finished",
		zap.Int("pages_fetched", report.PagesFetched),
		zap.Int("records_parsed", report.RecordsParsed),
		zap.Int64("rows_inserted", report.RecordsInserted),
		zap.Int64("rows_total", report.TotalRows),
	)
	return report, nil
}

func (o *Orchestrator) paginate(ctx context.Context, report *Report) []StructuredRecord {
	var records []StructuredRecord
	page := 1
	consecutiveFailures := 0

	for len(records) < o.cfg.TargetRecords {
		if ctx.Err() != nil {
			break
		}

		body, ok := o.fetchPage(ctx, page)
		if !ok {
			report.PagesAbandoned++
			consecutiveFailures++
			if consecutiveFailures >= o.cfg.MaxConsecutiveFailures {
				o.deps.Logger.Warn("sustained fetch failure, stopping pagination",
					zap.Int("page", page), zap.Int("consecutive_failures", consecutiveFailures))
				break
			}
			page++
			continue
		}
		consecutiveFailures = 0
		report.PagesFetched++

		o.archivePage(page, body)

		entries, err := o.deps.Extractor.Entries(body, o.cfg.BaseURL)
		if err != nil {
			o.deps.Logger.Info("listing exhausted", zap.Int("page", page), zap.Error(err))
			break
		}
		if len(entries) == 0 {
			o.deps.Logger.Info("empty page, stopping pagination", zap.Int("page", page))
			break
		}
		report.EntriesExtracted += len(entries)
		metrics.ObserveEntriesExtracted(len(entries))

		for _, entry := range entries {
			if entry.EntryURL == "" {
				// URL is the identity key; an entry without one cannot be
				// stored idempotently.
				o.deps.Logger.Debug("entry without URL skipped", zap.Int("page", page))
				continue
			}
			rec, err := o.deps.Parser.Parse(entry)
			if err != nil {
				o.deps.Logger.Debug("entry parse skipped", zap.Int("page", page), zap.Error(err))
				continue
			}
			records = append(records, rec)
			report.RecordsParsed++
			if len(records) >= o.cfg.TargetRecords {
				break
			}
		}

		if !o.pause(ctx) {
			break
		}
		page++
	}
	return records
}

// fetchPage retrieves one listing page, retrying up to the budget.
func (o *Orchestrator) fetchPage(ctx context.Context, page int) ([]byte, bool) {
	url := fmt.Sprintf("%s%s?page=%d", o.cfg.BaseURL, o.cfg.SurveyPath, page)
	attempts := o.cfg.PageRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, false
		}
		resp, err := o.deps.Fetcher.Fetch(ctx, url)
		if err != nil {
			metrics.ObservePageFetch("transport_error")
			o.deps.Logger.Warn("page fetch failed",
				zap.Int("page", page), zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if resp.StatusCode != 200 {
			metrics.ObservePageFetch("http_error")
			o.deps.Logger.Warn("page fetch returned non-200",
				zap.Int("page", page), zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))
			continue
		}
		metrics.ObservePageFetch("ok")
		return resp.Body, true
	}
	metrics.ObservePageFetch("abandoned")
	return nil, false
}

func (o *Orchestrator) archivePage(page int, body []byte) {
	if o.deps.Archive == nil {
		return
	}
	if _, err := o.deps.Archive.ArchivePage(page, body); err != nil {
		o.deps.Logger.Warn("page archive failed", zap.Int("page", page), zap.Error(err))
	}
}

// pause sleeps for the configured courtesy delay, returning false when the
// context ends first.
func (o *Orchestrator) pause(ctx context.Context) bool {
	if o.cfg.Delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(o.cfg.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
