// Package pipeline defines the core types and the orchestrator for the
// scrape -> clean -> serialize -> load admissions data pipeline.
package pipeline

// RawEntry is one applicant's un-normalized markup group plus the detail-page
// URL that identifies the entry.
type RawEntry struct {
	CombinedHTML string `json:"combined_html"`
	EntryURL     string `json:"entry_url"`
}

// Degree values recognized from the closed vocabulary.
const (
	DegreePhD     = "PhD"
	DegreeMasters = "Masters"
	DegreePsyD    = "PsyD"
)

// Status values for the decision classification.
const (
	StatusAccepted   = "Accepted"
	StatusRejected   = "Rejected"
	StatusWaitlisted = "Waitlisted"
	StatusOther      = "Other"
)

// Origin values for the applicant residency field.
const (
	OriginInternational = "International"
	OriginAmerican      = "American"
)

// GREScores holds the three GRE sub-scores. A nil sub-score means the value
// was absent; zero-valued scores from the source are normalized to nil.
type GREScores struct {
	Quant   *float64 `json:"quant"`
	Verbal  *float64 `json:"verbal"`
	Writing *float64 `json:"writing"`
}

// Empty reports whether every sub-score is absent.
func (g *GREScores) Empty() bool {
	return g == nil || (g.Quant == nil && g.Verbal == nil && g.Writing == nil)
}

// StructuredRecord is a fully-typed normalized applicant entry. URL is the
// sole identity key and is always present; every other field is nullable.
// Dates are carried as YYYY-MM-DD text until the loader converts them to the
// store's native date type at insert time.
type StructuredRecord struct {
	University             *string    `json:"university"`
	Program                *string    `json:"program"`
	Degree                 *string    `json:"degree"`
	DateAdded              *string    `json:"date_added"`
	Status                 *string    `json:"status"`
	StatusDate             *string    `json:"status_date"`
	Term                   *string    `json:"term"`
	Origin                 *string    `json:"origin"`
	GPA                    *float64   `json:"gpa"`
	GRE                    *GREScores `json:"gre_scores"`
	Comment                *string    `json:"comment"`
	URL                    string     `json:"url"`
	StandardizedProgram    *string    `json:"standardized_program"`
	StandardizedUniversity *string    `json:"standardized_university"`
}

// FetchResponse is the result of a single page retrieval. HTTP-level
// failures (4xx/5xx) are carried in StatusCode, not as errors, so callers
// can apply per-field skip-on-failure policy.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Report summarizes one pipeline run.
type Report struct {
	PagesFetched     int
	PagesAbandoned   int
	EntriesExtracted int
	RecordsParsed    int
	RecordsInserted  int64
	TotalRows        int64
}
