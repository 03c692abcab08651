package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhu-ep/gradcafe-pipeline/internal/pipeline"
)

const baseURL = "https://www.thegradcafe.com"

func TestEntriesGroupsAdjacentRows(t *testing.T) {
	t.Parallel()

	page := []byte(`<html><body><table>
<tr><th>School</th><th>Program</th><th>Added</th><th>Decision</th></tr>
<tr><td>Johns Hopkins University</td><td>Computer Science · PhD</td><td>1/10/2026</td><td><a href="/result/1001">Accepted on 15 Jan</a></td></tr>
<tr><td><div>Fall 2026</div><div>International</div><div>GPA: 3.72</div></td></tr>
<tr><td><p>Great program, very happy.</p></td></tr>
<tr><td>Purdue University</td><td>Biology · Masters</td><td>1/11/2026</td><td><a href="/result/1002">Rejected</a></td></tr>
<tr><td>MIT</td><td>Physics · PhD</td><td>1/12/2026</td><td><a href="/result/1003">Wait listed</a></td></tr>
<tr><td><div>Fall 2026</div></td></tr>
</table></body></html>`)

	entries, err := (Segmenter{}).Entries(page, baseURL)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Contains(t, entries[0].CombinedHTML, "Johns Hopkins University")
	assert.Contains(t, entries[0].CombinedHTML, "GPA: 3.72")
	assert.Contains(t, entries[0].CombinedHTML, "Great program, very happy.")
	assert.Equal(t, baseURL+"/result/1001", entries[0].EntryURL)

	// Second group has no continuation rows.
	assert.Contains(t, entries[1].CombinedHTML, "Purdue University")
	assert.NotContains(t, entries[1].CombinedHTML, "Physics")

	assert.Contains(t, entries[2].CombinedHTML, "MIT")
	assert.Contains(t, entries[2].CombinedHTML, "Fall 2026")
}

func TestEntriesSkipsMalformedRowsWithoutBreakingScan(t *testing.T) {
	t.Parallel()

	page := []byte(`<table>
<tr><td>spacer</td><td>only two cells</td></tr>
<tr><td>School A</td><td>Program A</td><td>1/1/2026</td><td><a href="/result/1">Accepted</a></td></tr>
<tr><td>stray</td></tr>
<tr><td>School B</td><td>Program B</td><td>1/2/2026</td><td><a href="/result/2">Rejected</a></td></tr>
</table>`)

	entries, err := (Segmenter{}).Entries(page, baseURL)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[0].CombinedHTML, "School A")
	assert.Contains(t, entries[1].CombinedHTML, "School B")
}

func TestEntriesNoTable(t *testing.T) {
	t.Parallel()

	_, err := (Segmenter{}).Entries([]byte(`<html><body><p>nothing here</p></body></html>`), baseURL)
	require.ErrorIs(t, err, pipeline.ErrNoTable)
}

func TestEntriesEmptyTable(t *testing.T) {
	t.Parallel()

	entries, err := (Segmenter{}).Entries([]byte(`<table><tr><th>School</th></tr></table>`), baseURL)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEntryURLMissingLink(t *testing.T) {
	t.Parallel()

	page := []byte(`<table>
<tr><td>School A</td><td>Program A</td><td>1/1/2026</td><td>Accepted</td></tr>
</table>`)

	entries, err := (Segmenter{}).Entries(page, baseURL)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].EntryURL)
}

func TestEntryURLAbsoluteHrefKept(t *testing.T) {
	t.Parallel()

	page := []byte(`<table>
<tr><td>School A</td><td>Program A</td><td>1/1/2026</td><td><a href="https://other.example.com/result/9">Accepted</a></td></tr>
</table>`)

	entries, err := (Segmenter{}).Entries(page, baseURL)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://other.example.com/result/9", entries[0].EntryURL)
}
