package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sourceColumns = `id, external_id, name, thumbnail, enabled,
	last_seen_item_id, last_seen_at, last_scanned_at, created_at`

func scanSource(row rowScanner) (*Source, error) {
	var (
		src            Source
		lastSeenItemID sql.NullString
		lastSeenAt     sql.NullString
		lastScannedAt  sql.NullString
		createdAt      sql.NullString
	)
	err := row.Scan(
		&src.ID, &src.ExternalID, &src.Name, &src.Thumbnail, &src.Enabled,
		&lastSeenItemID, &lastSeenAt, &lastScannedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	src.LastSeenItemID = lastSeenItemID.String
	if src.LastSeenAt, err = parseTime(lastSeenAt); err != nil {
		return nil, err
	}
	if src.LastScannedAt, err = parseTime(lastScannedAt); err != nil {
		return nil, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	if created != nil {
		src.CreatedAt = *created
	}
	return &src, nil
}

// UpsertSource creates a source on first sight and refreshes its display
// fields on subsequent reconciliations. The checkpoint is never touched here.
func (s *Store) UpsertSource(ctx context.Context, externalID, name, thumbnail string) (*Source, error) {
	if externalID == "" {
		return nil, errors.New("source external id is required")
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO sources (external_id, name, thumbnail, enabled, created_at)
         VALUES (?, ?, ?, 1, ?)
         ON CONFLICT(external_id) DO UPDATE SET name = excluded.name, thumbnail = excluded.thumbnail`,
		externalID, name, thumbnail, timestamp(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert source: %w", err)
	}
	return s.GetSource(ctx, externalID)
}

// GetSource fetches a source by provider identifier.
func (s *Store) GetSource(ctx context.Context, externalID string) (*Source, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+sourceColumns+` FROM sources WHERE external_id = ?`, externalID)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

// ListSources returns sources, optionally only enabled ones, ordered so the
// least recently scanned come first.
func (s *Store) ListSources(ctx context.Context, enabledOnly bool) ([]*Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY last_scanned_at ASC NULLS FIRST, id ASC`

	rows, err := s.db.QueryContext(ensureContext(ctx), query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// AdvanceCheckpoint records the newest item observed in a completed source
// scan. Callers must only invoke this after the scan's discoveries are
// durably recorded.
func (s *Store) AdvanceCheckpoint(ctx context.Context, externalID, newestItemID string, newestItemAt *time.Time) error {
	now := time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE sources
         SET last_seen_item_id = ?, last_seen_at = ?, last_scanned_at = ?
         WHERE external_id = ?`,
		nullableString(newestItemID), nullableTime(newestItemAt), timestamp(now), externalID,
	)
	if err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}
	return nil
}

// TouchScanned stamps last_scanned_at without moving the checkpoint, for
// scans that found nothing new.
func (s *Store) TouchScanned(ctx context.Context, externalID string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE sources SET last_scanned_at = ? WHERE external_id = ?`,
		timestamp(time.Now()), externalID,
	)
	if err != nil {
		return fmt.Errorf("touch scanned: %w", err)
	}
	return nil
}

// SetSourceEnabled toggles whether the scanner visits a source.
func (s *Store) SetSourceEnabled(ctx context.Context, externalID string, enabled bool) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE sources SET enabled = ? WHERE external_id = ?`,
		enabled, externalID,
	)
	if err != nil {
		return fmt.Errorf("set source enabled: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("source %q not found", externalID)
	}
	return nil
}
