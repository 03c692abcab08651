// Package extract segments listing pages into per-applicant raw blocks.
//
// The results table interleaves three kinds of rows: a primary row with at
// least four data cells, an optional tag row (term / residency / GPA
// badges), and an optional comment row. The discriminator is structural
// (cell count), never content-based.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jhu-ep/gradcafe-pipeline/internal/pipeline"
)

const minPrimaryCells = 4

// Segmenter implements pipeline.Extractor.
type Segmenter struct{}

// Entries locates the results table and groups up to three adjacent rows
// per applicant. Rows with fewer than four cells outside a group are
// skipped as headers/spacers without affecting adjacent grouping, and a
// malformed row never terminates the page scan.
func (Segmenter) Entries(body []byte, baseURL string) ([]pipeline.RawEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, pipeline.ErrNoTable
	}

	var rows []*goquery.Selection
	table.Find("tr").Each(func(_ int, s *goquery.Selection) {
		rows = append(rows, s)
	})

	var entries []pipeline.RawEntry
	for i := 0; i < len(rows); i++ {
		if rows[i].Find("td").Length() < minPrimaryCells {
			continue
		}

		parts, consumed, ok := groupRows(rows, i)
		if !ok {
			continue
		}

		entries = append(entries, pipeline.RawEntry{
			CombinedHTML: strings.Join(parts, "\n"),
			EntryURL:     entryURL(rows[i], baseURL),
		})
		i += consumed
	}
	return entries, nil
}

// groupRows renders the primary row plus up to two continuation rows.
// A continuation row has between one and three cells; a header row (no
// cells) or the next primary row ends the group.
func groupRows(rows []*goquery.Selection, start int) (parts []string, consumed int, ok bool) {
	primary, err := goquery.OuterHtml(rows[start])
	if err != nil {
		return nil, 0, false
	}
	parts = []string{primary}

	for j := start + 1; j <= start+2 && j < len(rows); j++ {
		cells := rows[j].Find("td").Length()
		if cells == 0 || cells >= minPrimaryCells {
			break
		}
		html, err := goquery.OuterHtml(rows[j])
		if err != nil {
			break
		}
		parts = append(parts, html)
		consumed++
	}
	return parts, consumed, true
}

// entryURL resolves the first link in the primary row against the base URL.
// Entries without a link yield an empty identifier and are discarded
// downstream.
func entryURL(row *goquery.Selection, baseURL string) string {
	href, found := row.Find("a[href]").First().Attr("href")
	if !found || strings.TrimSpace(href) == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
