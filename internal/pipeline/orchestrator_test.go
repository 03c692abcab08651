package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchFunc func(ctx context.Context, url string) (FetchResponse, error)

func (f fetchFunc) Fetch(ctx context.Context, url string) (FetchResponse, error) {
	return f(ctx, url)
}

type policyFunc func(ctx context.Context, baseURL, targetPath string) (bool, error)

func (f policyFunc) Allowed(ctx context.Context, baseURL, targetPath string) (bool, error) {
	return f(ctx, baseURL, targetPath)
}

type extractFunc func(body []byte, baseURL string) ([]RawEntry, error)

func (f extractFunc) Entries(body []byte, baseURL string) ([]RawEntry, error) {
	return f(body, baseURL)
}

type parseFunc func(entry RawEntry) (StructuredRecord, error)

func (f parseFunc) Parse(entry RawEntry) (StructuredRecord, error) { return f(entry) }

type enrichFunc func(ctx context.Context, records []StructuredRecord) []StructuredRecord

func (f enrichFunc) Enrich(ctx context.Context, records []StructuredRecord) []StructuredRecord {
	return f(ctx, records)
}

type fakeLoader struct {
	loaded  []StructuredRecord
	loadErr error
	loads   int
}

func (l *fakeLoader) Load(_ context.Context, records []StructuredRecord) (int64, error) {
	l.loads++
	if l.loadErr != nil {
		return 0, l.loadErr
	}
	l.loaded = append(l.loaded, records...)
	return int64(len(records)), nil
}

func (l *fakeLoader) CountRows(context.Context) (int64, error) {
	return int64(len(l.loaded)), nil
}

// pageBody encodes the requested page number so the fake extractor can key
// its output on it.
func pageFetcher(failPages map[int]bool) fetchFunc {
	return func(_ context.Context, url string) (FetchResponse, error) {
		page := pageOf(url)
		if failPages[page] {
			return FetchResponse{}, errors.New("connection reset")
		}
		return FetchResponse{URL: url, StatusCode: 200, Body: []byte(strconv.Itoa(page))}, nil
	}
}

func pageOf(url string) int {
	idx := strings.LastIndex(url, "page=")
	page, _ := strconv.Atoi(url[idx+len("page="):])
	return page
}

// entriesPerPage builds an extractor emitting n entries per page until
// lastPage, then empty pages.
func entriesPerPage(n, lastPage int) extractFunc {
	return func(body []byte, _ string) ([]RawEntry, error) {
		page, _ := strconv.Atoi(string(body))
		if page > lastPage {
			return nil, nil
		}
		entries := make([]RawEntry, n)
		for i := range entries {
			entries[i] = RawEntry{
				CombinedHTML: "<tr></tr>",
				EntryURL:     fmt.Sprintf("https://example.com/result/%d-%d", page, i),
			}
		}
		return entries, nil
	}
}

func identityParser() parseFunc {
	return func(entry RawEntry) (StructuredRecord, error) {
		return StructuredRecord{URL: entry.EntryURL}, nil
	}
}

func passEnricher() enrichFunc {
	return func(_ context.Context, records []StructuredRecord) []StructuredRecord {
		return records
	}
}

func testDeps(loader *fakeLoader) Deps {
	return Deps{
		Fetcher:   pageFetcher(nil),
		Policy:    policyFunc(func(context.Context, string, string) (bool, error) { return true, nil }),
		Extractor: entriesPerPage(5, 100),
		Parser:    identityParser(),
		Enricher:  passEnricher(),
		Loader:    loader,
	}
}

func testConfig() Config {
	return Config{
		BaseURL:                "https://example.com",
		SurveyPath:             "/survey/index.php",
		TargetRecords:          8,
		PageRetries:            1,
		MaxConsecutiveFailures: 3,
	}
}

func TestRunStopsAtTargetCount(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	orch, err := New(testDeps(loader), testConfig())
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, report.RecordsParsed)
	assert.Equal(t, 2, report.PagesFetched)
	assert.Len(t, loader.loaded, 8)
	assert.Equal(t, int64(8), report.RecordsInserted)
	assert.Equal(t, int64(8), report.TotalRows)
}

func TestRunStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	deps := testDeps(loader)
	deps.Extractor = entriesPerPage(5, 1)
	cfg := testConfig()
	cfg.TargetRecords = 100

	orch, err := New(deps, cfg)
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.PagesFetched)
	assert.Equal(t, 5, report.RecordsParsed)
}

func TestRunStopsWhenTableDisappears(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	deps := testDeps(loader)
	deps.Extractor = extractFunc(func(body []byte, _ string) ([]RawEntry, error) {
		if string(body) != "1" {
			return nil, ErrNoTable
		}
		return []RawEntry{{CombinedHTML: "<tr></tr>", EntryURL: "https://example.com/result/1"}}, nil
	})
	cfg := testConfig()
	cfg.TargetRecords = 100

	orch, err := New(deps, cfg)
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.RecordsParsed)
}

func TestRunAbandonsFailingPageAndContinues(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	deps := testDeps(loader)
	deps.Fetcher = pageFetcher(map[int]bool{2: true})
	deps.Extractor = entriesPerPage(5, 3)
	cfg := testConfig()
	cfg.TargetRecords = 100

	orch, err := New(deps, cfg)
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)

	// Page 2 exhausts its retry budget and is skipped; pages 1, 3 and the
	// empty page 4 are still fetched.
	assert.Equal(t, 1, report.PagesAbandoned)
	assert.Equal(t, 3, report.PagesFetched)
	assert.Equal(t, 10, report.RecordsParsed)
}

func TestRunStopsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	deps := testDeps(loader)
	deps.Fetcher = fetchFunc(func(context.Context, string) (FetchResponse, error) {
		return FetchResponse{}, errors.New("unreachable")
	})
	cfg := testConfig()
	cfg.TargetRecords = 100

	orch, err := New(deps, cfg)
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.PagesAbandoned)
	assert.Zero(t, report.PagesFetched)
	assert.Equal(t, 1, loader.loads)
	assert.Empty(t, loader.loaded)
}

func TestRunTreatsNon200AsFailure(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	deps := testDeps(loader)
	deps.Fetcher = fetchFunc(func(_ context.Context, url string) (FetchResponse, error) {
		return FetchResponse{URL: url, StatusCode: 503}, nil
	})
	cfg := testConfig()
	cfg.TargetRecords = 100

	orch, err := New(deps, cfg)
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.PagesFetched)
	assert.Equal(t, 3, report.PagesAbandoned)
}

func TestRunPolicyViolation(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	deps := testDeps(loader)
	deps.Policy = policyFunc(func(context.Context, string, string) (bool, error) { return false, nil })

	orch, err := New(deps, testConfig())
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.ErrorIs(t, err, ErrPolicyViolation)
	assert.Zero(t, loader.loads)
}

func TestRunPolicyError(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	deps := testDeps(loader)
	deps.Policy = policyFunc(func(context.Context, string, string) (bool, error) {
		return false, errors.New("invalid base URL")
	})

	orch, err := New(deps, testConfig())
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, loader.loads)
}

func TestRunSkipsEntriesWithoutURL(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	deps := testDeps(loader)
	deps.Extractor = extractFunc(func(body []byte, _ string) ([]RawEntry, error) {
		if string(body) != "1" {
			return nil, nil
		}
		return []RawEntry{
			{CombinedHTML: "<tr></tr>", EntryURL: "https://example.com/result/1"},
			{CombinedHTML: "<tr></tr>"},
			{CombinedHTML: "<tr></tr>", EntryURL: "https://example.com/result/2"},
		}, nil
	})
	cfg := testConfig()
	cfg.TargetRecords = 100

	orch, err := New(deps, cfg)
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.EntriesExtracted)
	assert.Equal(t, 2, report.RecordsParsed)
}

func TestRunSkipsUnparseableEntries(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	deps := testDeps(loader)
	deps.Extractor = entriesPerPage(3, 1)
	deps.Parser = parseFunc(func(entry RawEntry) (StructuredRecord, error) {
		if strings.HasSuffix(entry.EntryURL, "1-1") {
			return StructuredRecord{}, errors.New("primary row has fewer than 4 cells")
		}
		return StructuredRecord{URL: entry.EntryURL}, nil
	})
	cfg := testConfig()
	cfg.TargetRecords = 100

	orch, err := New(deps, cfg)
	require.NoError(t, err)

	report, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.RecordsParsed)
}

func TestRunAppliesEnricher(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	deps := testDeps(loader)
	deps.Extractor = entriesPerPage(2, 1)
	degree := DegreePhD
	deps.Enricher = enrichFunc(func(_ context.Context, records []StructuredRecord) []StructuredRecord {
		for i := range records {
			records[i].Degree = &degree
		}
		return records
	})
	cfg := testConfig()
	cfg.TargetRecords = 100

	orch, err := New(deps, cfg)
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, loader.loaded, 2)
	for _, rec := range loader.loaded {
		require.NotNil(t, rec.Degree)
		assert.Equal(t, DegreePhD, *rec.Degree)
	}
}

func TestRunWritesJSONLBeforeLoading(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	deps := testDeps(loader)
	cfg := testConfig()
	cfg.JSONLPath = filepath.Join(t.TempDir(), "records.jsonl")

	orch, err := New(deps, cfg)
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.NoError(t, err)

	records, err := ReadRecords(cfg.JSONLPath)
	require.NoError(t, err)
	assert.Equal(t, loader.loaded, records)
}

func TestRunLoaderFailureSurfaces(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{loadErr: errors.New("store unavailable")}
	orch, err := New(testDeps(loader), testConfig())
	require.NoError(t, err)

	_, err = orch.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	deps := testDeps(&fakeLoader{})
	deps.Fetcher = nil
	_, err := New(deps, testConfig())
	require.Error(t, err)

	cfg := testConfig()
	cfg.TargetRecords = 0
	_, err = New(testDeps(&fakeLoader{}), cfg)
	require.Error(t, err)
}
