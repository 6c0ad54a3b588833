package store

import (
	"context"
	"fmt"
)

// ItemStats returns item counts grouped by status for both phases.
func (s *Store) ItemStats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Retrieval: make(map[Status]int),
		Relay:     make(map[Status]int),
	}

	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT retrieval_status, relay_status, COUNT(1) FROM items GROUP BY retrieval_status, relay_status`)
	if err != nil {
		return stats, fmt.Errorf("item stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var retrieval, relay Status
		var count int
		if err := rows.Scan(&retrieval, &relay, &count); err != nil {
			return stats, err
		}
		stats.Total += count
		stats.Retrieval[retrieval] += count
		stats.Relay[relay] += count
	}
	return stats, rows.Err()
}

// TotalLocalSize sums the size of retrieved local files.
func (s *Store) TotalLocalSize(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COALESCE(SUM(local_size), 0) FROM items WHERE local_size IS NOT NULL`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total local size: %w", err)
	}
	return total, nil
}

// CountSources returns the number of tracked sources, optionally only
// enabled ones.
func (s *Store) CountSources(ctx context.Context, enabledOnly bool) (int, error) {
	query := `SELECT COUNT(1) FROM sources`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sources: %w", err)
	}
	return count, nil
}
