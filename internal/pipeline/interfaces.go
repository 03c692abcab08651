package pipeline

import (
	"context"
	"errors"
)

// ErrPolicyViolation reports that the data source disallows automated
// retrieval of the target path. It is fatal to a run; no writes happen.
var ErrPolicyViolation = errors.New("site policy disallows scraping the target path")

// ErrNoTable reports a listing page without a results table, which marks
// the end of pagination.
var ErrNoTable = errors.New("no results table found")

// Fetcher retrieves one page by URL. Transport failures are errors;
// HTTP-level failures are returned as data in the FetchResponse.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Policy is the pre-flight site-policy check, invoked once per run before
// any listing or detail fetch.
type Policy interface {
	Allowed(ctx context.Context, baseURL, targetPath string) (bool, error)
}

// Extractor segments a listing page body into per-applicant raw blocks.
type Extractor interface {
	Entries(body []byte, baseURL string) ([]RawEntry, error)
}

// Parser converts one raw block into a structured record without any I/O.
type Parser interface {
	Parse(entry RawEntry) (StructuredRecord, error)
}

// Enricher patches missing fields via detail-page fetches. It never fails a
// record; fetch or label failures degrade the requested fields to null.
type Enricher interface {
	Enrich(ctx context.Context, records []StructuredRecord) []StructuredRecord
}

// RecordLoader upserts structured records into persistent storage with
// first-write-wins semantics keyed on URL.
type RecordLoader interface {
	Load(ctx context.Context, records []StructuredRecord) (inserted int64, err error)
	CountRows(ctx context.Context) (int64, error)
}

// PageArchiver persists raw listing pages for later reprocessing.
type PageArchiver interface {
	ArchivePage(page int, body []byte) (string, error)
}
