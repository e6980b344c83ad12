package manifest

import (
	"context"
	"errors"
)

// Stats holds aggregated statistics for the manifest database.
type Stats struct {
	Files   int   // The number of tracked passthrough files
	Bytes   int64 // The total size of all tracked files
	Runs    int   // The number of recorded builds
	LastRun *Run  // The most recent build, nil if there has been none
}

// GetStats returns a snapshot of statistics for the manifest.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats

	err := s.stmtFileTotals.QueryRowContext(ctx).Scan(&stats.Files, &stats.Bytes)
	if err != nil {
		return nil, err
	}

	err = s.stmtRunCount.QueryRowContext(ctx).Scan(&stats.Runs)
	if err != nil {
		return nil, err
	}

	last, err := s.LastRun(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, err
	default:
		stats.LastRun = &last
	}

	return &stats, nil
}
