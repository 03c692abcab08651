// Package analysis recomputes the dashboard summary from the applicants
// store. It is read-only and runs only when explicitly requested; a pull
// finishing never triggers it implicitly.
package analysis

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Querier is the read-side subset of the connection pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Result is one question/answer pair rendered by the dashboard.
type Result struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Service computes summary results against the applicants table.
type Service struct {
	db    Querier
	table string
	term  string
}

// New builds a Service for the given table. The focus term defaults to
// "Fall 2026".
func New(db Querier, table string) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if table == "" {
		table = "applicants"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Service{db: db, table: table, term: "Fall 2026"}, nil
}

// Summary recomputes every dashboard question against the current store
// state.
func (s *Service) Summary(ctx context.Context) ([]Result, error) {
	termCount, err := s.termCount(ctx)
	if err != nil {
		return nil, err
	}
	pctInternational, err := s.percentInternational(ctx)
	if err != nil {
		return nil, err
	}
	avgGPA, avgQ, avgV, avgAW, err := s.scoreAverages(ctx)
	if err != nil {
		return nil, err
	}
	pctAccepted, err := s.percentAccepted(ctx)
	if err != nil {
		return nil, err
	}
	avgAcceptedGPA, err := s.acceptedGPA(ctx)
	if err != nil {
		return nil, err
	}
	topPrograms, err := s.topPrograms(ctx, 3)
	if err != nil {
		return nil, err
	}

	return []Result{
		{
			Question: fmt.Sprintf("How many entries have applied for %s?", s.term),
			Answer:   fmt.Sprintf("Applicant count: %d", termCount),
		},
		{
			Question: "What percentage of entries are International?",
			Answer:   fmt.Sprintf("Percent International: %s", FormatPercent(pctInternational)),
		},
		{
			Question: "What are the average GPA and GRE scores of applicants who provided them?",
			Answer: fmt.Sprintf("Avg GPA: %s, Avg GRE: %s, Avg GRE V: %s, Avg GRE AW: %s",
				formatAvg(avgGPA), formatAvg(avgQ), formatAvg(avgV), formatAvg(avgAW)),
		},
		{
			Question: fmt.Sprintf("What percent of %s entries are Acceptances?", s.term),
			Answer:   fmt.Sprintf("Acceptance percent: %s", FormatPercent(pctAccepted)),
		},
		{
			Question: fmt.Sprintf("What is the average GPA of %s Acceptances?", s.term),
			Answer:   fmt.Sprintf("Avg GPA Acceptances: %s", formatAvg(avgAcceptedGPA)),
		},
		{
			Question: "What are the top 3 most common programs in the dataset?",
			Answer:   topPrograms,
		},
	}, nil
}

func (s *Service) termCount(ctx context.Context) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE term = $1", s.table)
	if err := s.db.QueryRow(ctx, query, s.term).Scan(&count); err != nil {
		return 0, fmt.Errorf("term count: %w", err)
	}
	return count, nil
}

func (s *Service) percentInternational(ctx context.Context) (float64, error) {
	var international, total int64
	query := fmt.Sprintf(`
SELECT
	COUNT(*) FILTER (WHERE us_or_international = 'International'),
	COUNT(*)
FROM %s`, s.table)
	if err := s.db.QueryRow(ctx, query).Scan(&international, &total); err != nil {
		return 0, fmt.Errorf("percent international: %w", err)
	}
	return percent(international, total), nil
}

func (s *Service) scoreAverages(ctx context.Context) (gpa, quant, verbal, writing *float64, err error) {
	query := fmt.Sprintf(`
SELECT AVG(gpa), AVG(gre), AVG(gre_v), AVG(gre_aw)
FROM %s
WHERE (gpa IS NULL OR gpa BETWEEN 0 AND 4.3)
  AND (gre IS NULL OR gre BETWEEN 130 AND 340)
  AND (gre_v IS NULL OR gre_v BETWEEN 130 AND 170)
  AND (gre_aw IS NULL OR gre_aw BETWEEN 0 AND 6)`, s.table)
	if err := s.db.QueryRow(ctx, query).Scan(&gpa, &quant, &verbal, &writing); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("score averages: %w", err)
	}
	return gpa, quant, verbal, writing, nil
}

func (s *Service) percentAccepted(ctx context.Context) (float64, error) {
	var accepted, total int64
	query := fmt.Sprintf(`
SELECT
	COUNT(*) FILTER (WHERE status = 'Accepted'),
	COUNT(*)
FROM %s
WHERE term = $1`, s.table)
	if err := s.db.QueryRow(ctx, query, s.term).Scan(&accepted, &total); err != nil {
		return 0, fmt.Errorf("percent accepted: %w", err)
	}
	return percent(accepted, total), nil
}

func (s *Service) acceptedGPA(ctx context.Context) (*float64, error) {
	var avg *float64
	query := fmt.Sprintf(`
SELECT AVG(gpa)
FROM %s
WHERE term = $1 AND status = 'Accepted' AND gpa IS NOT NULL`, s.table)
	if err := s.db.QueryRow(ctx, query, s.term).Scan(&avg); err != nil {
		return nil, fmt.Errorf("accepted gpa: %w", err)
	}
	return avg, nil
}

func (s *Service) topPrograms(ctx context.Context, limit int) (string, error) {
	query := fmt.Sprintf(`
SELECT program, COUNT(*) AS n
FROM %s
WHERE program IS NOT NULL AND program <> ''
GROUP BY program
ORDER BY n DESC
LIMIT $1`, s.table)
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return "", fmt.Errorf("top programs: %w", err)
	}
	defer rows.Close()

	answer := ""
	for rows.Next() {
		var program string
		var n int64
		if err := rows.Scan(&program, &n); err != nil {
			return "", fmt.Errorf("scan top program: %w", err)
		}
		if answer != "" {
			answer += "; "
		}
		answer += fmt.Sprintf("%s (%d)", program, n)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("top programs rows: %w", err)
	}
	if answer == "" {
		answer = "no data"
	}
	return answer, nil
}

// FormatPercent renders a percentage with exactly two decimal digits.
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func formatAvg(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}
