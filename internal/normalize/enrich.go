package normalize

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jhu-ep/gradcafe-pipeline/internal/metrics"
	"github.com/jhu-ep/gradcafe-pipeline/internal/pipeline"
)

// Field names accepted by the enricher configuration.
const (
	FieldGRE    = "gre"
	FieldDegree = "degree"
)

var detailLabels = struct {
	quant, verbal, writing *regexp.Regexp
}{
	quant:   regexp.MustCompile(`(?i)GRE General`),
	verbal:  regexp.MustCompile(`(?i)GRE Verbal`),
	writing: regexp.MustCompile(`(?i)Analytical Writing`),
}

// Enricher patches missing fields by fetching each entry's detail page
// once. Which fields may trigger a fetch is configurable; the original
// pipeline only triggered on GRE, so degree enrichment is opt-in.
type Enricher struct {
	fetcher pipeline.Fetcher
	fields  map[string]bool
	logger  *zap.Logger
}

// NewEnricher builds an Enricher for the given field set. Unknown field
// names are ignored.
func NewEnricher(fetcher pipeline.Fetcher, fields []string, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case FieldGRE:
			set[FieldGRE] = true
		case FieldDegree:
			set[FieldDegree] = true
		}
	}
	return &Enricher{fetcher: fetcher, fields: set, logger: logger}
}

// Enrich implements pipeline.Enricher. A failed fetch (transport error or
// non-200) or missing labels leave the requested fields null; enrichment
// never fails a record.
func (e *Enricher) Enrich(ctx context.Context, records []pipeline.StructuredRecord) []pipeline.StructuredRecord {
	if len(e.fields) == 0 {
		return records
	}
	for i := range records {
		if ctx.Err() != nil {
			break
		}
		if !e.needsDetail(&records[i]) || records[i].URL == "" {
			continue
		}
		e.patchFromDetail(ctx, &records[i])
	}
	return records
}

func (e *Enricher) needsDetail(rec *pipeline.StructuredRecord) bool {
	if e.fields[FieldGRE] && greIncomplete(rec.GRE) {
		return true
	}
	if e.fields[FieldDegree] && rec.Degree == nil {
		return true
	}
	return false
}

func greIncomplete(g *pipeline.GREScores) bool {
	return g == nil || g.Quant == nil || g.Verbal == nil || g.Writing == nil
}

func (e *Enricher) patchFromDetail(ctx context.Context, rec *pipeline.StructuredRecord) {
	resp, err := e.fetcher.Fetch(ctx, rec.URL)
	if err != nil {
		metrics.ObserveDetailFetch("transport_error")
		e.logger.Debug("detail fetch failed", zap.String("url", rec.URL), zap.Error(err))
		return
	}
	if resp.StatusCode != 200 {
		metrics.ObserveDetailFetch("http_error")
		e.logger.Debug("detail fetch returned non-200",
			zap.String("url", rec.URL), zap.Int("status", resp.StatusCode))
		return
	}
	metrics.ObserveDetailFetch("ok")

	p := parseDetail(resp.Body)

	if e.fields[FieldGRE] {
		merged := rec.GRE
		if merged == nil {
			merged = &pipeline.GREScores{}
		}
		if merged.Quant == nil {
			merged.Quant = p.quant
		}
		if merged.Verbal == nil {
			merged.Verbal = p.verbal
		}
		if merged.Writing == nil {
			merged.Writing = p.writing
		}
		if merged.Empty() {
			merged = nil
		}
		rec.GRE = merged
	}
	if e.fields[FieldDegree] && rec.Degree == nil {
		rec.Degree = p.degree
	}
}

type detailPatch struct {
	quant   *float64
	verbal  *float64
	writing *float64
	degree  *string
}

// parseDetail extracts labeled values from a detail page: GRE sub-scores
// from label/value span pairs and the degree from a dt/dd definition list.
func parseDetail(body []byte) detailPatch {
	var p detailPatch
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return p
	}

	var spans []string
	doc.Find("span").Each(func(_ int, s *goquery.Selection) {
		spans = append(spans, norm(s.Text()))
	})
	p.quant = labeledScore(spans, detailLabels.quant)
	p.verbal = labeledScore(spans, detailLabels.verbal)
	p.writing = labeledScore(spans, detailLabels.writing)

	if deg := definitionValue(doc, "Degree Type"); deg != "" {
		p.degree = classifyDegree(deg)
	}
	return p
}

// labeledScore finds the first span matching the label and parses the next
// span in document order as its value.
func labeledScore(spans []string, label *regexp.Regexp) *float64 {
	for i, text := range spans {
		if !label.MatchString(text) {
			continue
		}
		if i+1 >= len(spans) {
			return nil
		}
		return scorePtr(spans[i+1])
	}
	return nil
}

// definitionValue returns the dd text for the dt whose label matches.
func definitionValue(doc *goquery.Document, label string) string {
	var value string
	low := strings.ToLower(label)
	doc.Find("dt").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(strings.ToLower(norm(s.Text())), low) {
			return true
		}
		value = norm(s.NextAllFiltered("dd").First().Text())
		return false
	})
	return value
}
