package normalize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhu-ep/gradcafe-pipeline/internal/pipeline"
)

type stubFetcher struct {
	calls     int
	responses map[string]pipeline.FetchResponse
	err       error
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (pipeline.FetchResponse, error) {
	f.calls++
	if f.err != nil {
		return pipeline.FetchResponse{}, f.err
	}
	resp, ok := f.responses[url]
	if !ok {
		return pipeline.FetchResponse{URL: url, StatusCode: 404}, nil
	}
	return resp, nil
}

const detailURL = "https://www.thegradcafe.com/result/1001"

const detailPage = `<html><body>
<ul>
<li><span>GRE General:</span><span>321</span></li>
<li><span>GRE Verbal:</span><span>159</span></li>
<li><span>Analytical Writing:</span><span>4.00</span></li>
</ul>
<dl><dt>Degree Type</dt><dd>PhD</dd></dl>
</body></html>`

func record() pipeline.StructuredRecord {
	return pipeline.StructuredRecord{URL: detailURL}
}

func TestEnrichPatchesMissingGRE(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{responses: map[string]pipeline.FetchResponse{
		detailURL: {URL: detailURL, StatusCode: 200, Body: []byte(detailPage)},
	}}
	e := NewEnricher(fetcher, []string{FieldGRE}, nil)

	out := e.Enrich(context.Background(), []pipeline.StructuredRecord{record()})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].GRE)
	require.NotNil(t, out[0].GRE.Quant)
	assert.InDelta(t, 321, *out[0].GRE.Quant, 0.001)
	require.NotNil(t, out[0].GRE.Verbal)
	assert.InDelta(t, 159, *out[0].GRE.Verbal, 0.001)
	require.NotNil(t, out[0].GRE.Writing)
	assert.InDelta(t, 4.0, *out[0].GRE.Writing, 0.001)
	assert.Equal(t, 1, fetcher.calls)
}

func TestEnrichKeepsListingScores(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{responses: map[string]pipeline.FetchResponse{
		detailURL: {URL: detailURL, StatusCode: 200, Body: []byte(detailPage)},
	}}
	e := NewEnricher(fetcher, []string{FieldGRE}, nil)

	quant := 330.0
	rec := record()
	rec.GRE = &pipeline.GREScores{Quant: &quant}

	out := e.Enrich(context.Background(), []pipeline.StructuredRecord{rec})
	require.NotNil(t, out[0].GRE)
	require.NotNil(t, out[0].GRE.Quant)
	// Listing value wins; only the missing sub-scores are patched.
	assert.InDelta(t, 330, *out[0].GRE.Quant, 0.001)
	require.NotNil(t, out[0].GRE.Verbal)
	assert.InDelta(t, 159, *out[0].GRE.Verbal, 0.001)
}

func TestEnrichHTTPFailureLeavesFieldsNull(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	e := NewEnricher(fetcher, []string{FieldGRE}, nil)

	out := e.Enrich(context.Background(), []pipeline.StructuredRecord{record()})
	assert.Nil(t, out[0].GRE)
	assert.Equal(t, 1, fetcher.calls)
}

func TestEnrichTransportFailureLeavesFieldsNull(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{err: errors.New("connection refused")}
	e := NewEnricher(fetcher, []string{FieldGRE}, nil)

	out := e.Enrich(context.Background(), []pipeline.StructuredRecord{record()})
	assert.Nil(t, out[0].GRE)
}

func TestEnrichSkipsCompleteRecords(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	e := NewEnricher(fetcher, []string{FieldGRE}, nil)

	q, v, w := 320.0, 160.0, 4.5
	rec := record()
	rec.GRE = &pipeline.GREScores{Quant: &q, Verbal: &v, Writing: &w}

	e.Enrich(context.Background(), []pipeline.StructuredRecord{rec})
	assert.Zero(t, fetcher.calls)
}

func TestEnrichDegreeIsOptIn(t *testing.T) {
	t.Parallel()

	q, v, w := 320.0, 160.0, 4.5
	complete := &pipeline.GREScores{Quant: &q, Verbal: &v, Writing: &w}

	// GRE-only config: a missing degree alone does not trigger a fetch.
	fetcher := &stubFetcher{responses: map[string]pipeline.FetchResponse{
		detailURL: {URL: detailURL, StatusCode: 200, Body: []byte(detailPage)},
	}}
	rec := record()
	rec.GRE = complete
	out := NewEnricher(fetcher, []string{FieldGRE}, nil).
		Enrich(context.Background(), []pipeline.StructuredRecord{rec})
	assert.Zero(t, fetcher.calls)
	assert.Nil(t, out[0].Degree)

	// Opting in patches the degree from the detail page.
	rec = record()
	rec.GRE = complete
	out = NewEnricher(fetcher, []string{FieldGRE, FieldDegree}, nil).
		Enrich(context.Background(), []pipeline.StructuredRecord{rec})
	assert.Equal(t, 1, fetcher.calls)
	require.NotNil(t, out[0].Degree)
	assert.Equal(t, pipeline.DegreePhD, *out[0].Degree)
}

func TestEnrichUnknownFieldsIgnored(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	e := NewEnricher(fetcher, []string{"bogus"}, nil)

	out := e.Enrich(context.Background(), []pipeline.StructuredRecord{record()})
	assert.Zero(t, fetcher.calls)
	assert.Nil(t, out[0].GRE)
}

func TestEnrichSkipsRecordsWithoutURL(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	e := NewEnricher(fetcher, []string{FieldGRE}, nil)

	e.Enrich(context.Background(), []pipeline.StructuredRecord{{}})
	assert.Zero(t, fetcher.calls)
}
