// Package archive persists raw fetched listing pages to the local
// filesystem so a prior run's markup can be reprocessed without refetching.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store writes raw pages under a base directory, one subdirectory per run.
type Store struct {
	runDir string
}

// New creates the run directory under baseDir and verifies it is writable.
func New(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	runDir := filepath.Join(baseDir, time.Now().UTC().Format("20060102-150405"))
	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	probe := filepath.Join(runDir, ".writable")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return nil, fmt.Errorf("archive directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}
	return &Store{runDir: runDir}, nil
}

// ArchivePage writes one listing page body and returns the file path.
func (s *Store) ArchivePage(page int, body []byte) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("page number must be >= 1")
	}
	path := filepath.Join(s.runDir, fmt.Sprintf("listing-%04d.html", page))
	if err := os.WriteFile(path, body, 0o600); err != nil {
		return "", fmt.Errorf("write page archive: %w", err)
	}
	return path, nil
}
