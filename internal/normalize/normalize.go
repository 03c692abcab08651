// Package normalize converts raw applicant blocks into structured records.
//
// Parsing is a pure stage with no I/O; detail-page enrichment is a separate
// explicit stage (see Enricher). Whitespace is collapsed uniformly before
// any pattern match, and any field that cannot be parsed is null rather
// than omitted.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jhu-ep/gradcafe-pipeline/internal/pipeline"
)

var (
	degreeTokenRe = regexp.MustCompile(`(?i)\b(ph\.?d|psy\.?d|masters?)\b`)
	termRe        = regexp.MustCompile(`(?i)\b(Fall|Spring|Summer|Winter)\s+(20\d{2})\b`)
	gpaRe         = regexp.MustCompile(`(?i)\bGPA\s*:?\s*([0-4]\.\d{1,2})\b`)
	statusDateRe  = regexp.MustCompile(`\b(\d{1,2})\s+([A-Za-z]{3,})\b`)
	listingDateRe = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
	greQuantRe    = regexp.MustCompile(`(?i)\bGRE\s*:?\s*(\d{3})\b`)
	greVerbalRe   = regexp.MustCompile(`(?i)\bGRE\s*V\s*:?\s*(\d{2,3})\b`)
	greWritingRe  = regexp.MustCompile(`(?i)\bGRE\s*AW\s*:?\s*([0-6](?:\.\d{1,2})?)\b`)
)

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// Parser implements pipeline.Parser.
type Parser struct{}

// Parse converts one raw block into a structured record. The primary row
// yields university, program/degree, date added and the decision text; the
// combined text of all rows in the group yields term, origin, GPA, GRE
// badges and the comment block.
func (Parser) Parse(entry pipeline.RawEntry) (pipeline.StructuredRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(entry.CombinedHTML))
	if err != nil {
		return pipeline.StructuredRecord{}, fmt.Errorf("parse entry markup: %w", err)
	}

	primary := doc.Find("tr").First()
	cells := primary.Find("td")
	if cells.Length() < 4 {
		return pipeline.StructuredRecord{}, errors.New("primary row has fewer than 4 cells")
	}

	rec := pipeline.StructuredRecord{URL: entry.EntryURL}
	rec.University = textPtr(cells.Eq(0).Text())
	rec.Program, rec.Degree = splitProgram(cells.Eq(1).Text())
	rec.DateAdded = parseListingDate(cells.Eq(2).Text())

	decision := norm(cells.Eq(3).Text())
	rec.Status = classifyStatus(decision)
	rec.StatusDate = parseStatusDate(decision, rec.DateAdded)

	combined := norm(doc.Text())
	rec.Term = parseTerm(combined)
	rec.Origin = parseOrigin(combined)
	rec.GPA = parseGPA(combined)
	rec.GRE = parseGRE(combined)
	rec.Comment = textPtr(doc.Find("p").First().Text())

	return rec, nil
}

// splitProgram separates "Program · Degree" on the mid-dot and strips
// degree tokens left in the program text so they are not duplicated.
func splitProgram(raw string) (*string, *string) {
	text := norm(raw)
	if text == "" {
		return nil, nil
	}

	name := text
	var degree *string
	if idx := strings.Index(text, "·"); idx >= 0 {
		name = strings.TrimSpace(text[:idx])
		degree = classifyDegree(text[idx:])
	}

	name = norm(degreeTokenRe.ReplaceAllString(name, ""))
	return strPtr(name), degree
}

// classifyDegree recognizes a degree from the closed vocabulary.
func classifyDegree(raw string) *string {
	low := strings.ToLower(raw)
	switch {
	case strings.Contains(low, "phd"):
		return strPtr(pipeline.DegreePhD)
	case strings.Contains(low, "master"):
		return strPtr(pipeline.DegreeMasters)
	case strings.Contains(low, "psy"):
		return strPtr(pipeline.DegreePsyD)
	}
	return nil
}

func classifyStatus(decision string) *string {
	if decision == "" {
		return nil
	}
	low := strings.ToLower(decision)
	switch {
	case strings.Contains(low, "accept"):
		return strPtr(pipeline.StatusAccepted)
	case strings.Contains(low, "reject"):
		return strPtr(pipeline.StatusRejected)
	case strings.Contains(low, "wait"):
		return strPtr(pipeline.StatusWaitlisted)
	}
	return strPtr(pipeline.StatusOther)
}

// parseListingDate handles the listing's month-first numeric dates plus
// written-out variants, yielding YYYY-MM-DD.
func parseListingDate(raw string) *string {
	text := norm(raw)
	if text == "" {
		return nil
	}
	if m := listingDateRe.FindString(text); m != "" {
		text = m
	}
	for _, layout := range []string{"1/2/2006", "January 2, 2006", "Jan 2, 2006", "2006-01-02"} {
		if t, err := time.Parse(layout, text); err == nil {
			return strPtr(t.Format("2006-01-02"))
		}
	}
	return nil
}

// parseStatusDate extracts a "<day> <Month>" pattern from the decision
// text. The year is inherited from the date the entry was added, falling
// back to the current year.
func parseStatusDate(decision string, dateAdded *string) *string {
	m := statusDateRe.FindStringSubmatch(decision)
	if m == nil {
		return nil
	}
	day, err := strconv.Atoi(m[1])
	if err != nil || day < 1 || day > 31 {
		return nil
	}
	month := matchMonth(m[2])
	if month == 0 {
		return nil
	}

	year := time.Now().Year()
	if dateAdded != nil {
		if t, err := time.Parse("2006-01-02", *dateAdded); err == nil {
			year = t.Year()
		}
	}
	return strPtr(fmt.Sprintf("%04d-%02d-%02d", year, month, day))
}

// matchMonth resolves a month name or unambiguous prefix ("Jan",
// "January") to its number, or 0 when the token is not a month.
func matchMonth(token string) time.Month {
	low := strings.ToLower(token)
	for i, name := range monthNames {
		if strings.HasPrefix(name, low) {
			return time.Month(i + 1)
		}
	}
	return 0
}

func parseTerm(text string) *string {
	m := termRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	season := strings.ToUpper(m[1][:1]) + strings.ToLower(m[1][1:])
	return strPtr(season + " " + m[2])
}

func parseOrigin(text string) *string {
	low := strings.ToLower(text)
	switch {
	case strings.Contains(low, "international"):
		return strPtr(pipeline.OriginInternational)
	case strings.Contains(low, "american"):
		return strPtr(pipeline.OriginAmerican)
	}
	return nil
}

func parseGPA(text string) *float64 {
	m := gpaRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 || v > 4.3 {
		return nil
	}
	return &v
}

// parseGRE picks up score badges from the combined text. The writing and
// verbal labels are matched before the bare "GRE <score>" form so the
// general score never swallows a labeled sub-score. Absent or zero-valued
// scores stay nil.
func parseGRE(text string) *pipeline.GREScores {
	scores := &pipeline.GREScores{
		Writing: matchScore(greWritingRe, text),
		Verbal:  matchScore(greVerbalRe, text),
	}
	stripped := greWritingRe.ReplaceAllString(text, "")
	stripped = greVerbalRe.ReplaceAllString(stripped, "")
	scores.Quant = matchScore(greQuantRe, stripped)

	if scores.Empty() {
		return nil
	}
	return scores
}

func matchScore(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return scorePtr(m[1])
}

// scorePtr parses a numeric score, normalizing the source's zero-valued
// placeholder to nil instead of storing a misleading zero.
func scorePtr(raw string) *float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v == 0 {
		return nil
	}
	return &v
}

// norm collapses runs of whitespace and trims.
func norm(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func textPtr(s string) *string {
	return strPtr(norm(s))
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
