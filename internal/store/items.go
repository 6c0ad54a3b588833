package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const itemColumns = `id, external_id, title, source, duration, thumbnail,
	retrieval_status, retrieval_attempts, retrieval_error, local_path, local_size, retrieved_at,
	relay_status, relay_attempts, relay_error, remote_ref, relayed_at,
	created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var (
		item                       Item
		retrievalError, localPath  sql.NullString
		localSize                  sql.NullInt64
		retrievedAt                sql.NullString
		relayError, remoteRef      sql.NullString
		relayedAt, createdAt       sql.NullString
		retrievalStatus, relayStat string
	)
	err := row.Scan(
		&item.ID, &item.ExternalID, &item.Title, &item.Source, &item.Duration, &item.Thumbnail,
		&retrievalStatus, &item.RetrievalAttempts, &retrievalError, &localPath, &localSize, &retrievedAt,
		&relayStat, &item.RelayAttempts, &relayError, &remoteRef, &relayedAt,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	item.RetrievalStatus = Status(retrievalStatus)
	item.RelayStatus = Status(relayStat)
	item.RetrievalError = retrievalError.String
	item.LocalPath = localPath.String
	item.LocalSize = localSize.Int64
	item.RelayError = relayError.String
	item.RemoteRef = remoteRef.String

	if item.RetrievedAt, err = parseTime(retrievedAt); err != nil {
		return nil, err
	}
	if item.RelayedAt, err = parseTime(relayedAt); err != nil {
		return nil, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	if created != nil {
		item.CreatedAt = *created
	}
	return &item, nil
}

// InsertItem records a newly discovered item with both phases pending.
func (s *Store) InsertItem(ctx context.Context, externalID, title, source string, duration int, thumbnail string) (*Item, error) {
	if externalID == "" {
		return nil, errors.New("external id is required")
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO items (external_id, title, source, duration, thumbnail, retrieval_status, relay_status, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		externalID, title, source, duration, thumbnail,
		StatusPending, StatusPending,
		timestamp(time.Now()),
	)
	if err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetItem(ctx, id)
}

// GetItem fetches an item by internal identifier.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// GetItemByExternalID fetches an item by its provider identifier.
func (s *Store) GetItemByExternalID(ctx context.Context, externalID string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM items WHERE external_id = ?`, externalID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item by external id: %w", err)
	}
	return item, nil
}

// ListByStatus returns items whose given phase is in one of the statuses,
// oldest first.
func (s *Store) ListByStatus(ctx context.Context, phase Phase, statuses ...Status) ([]*Item, error) {
	column, err := statusColumn(phase)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, errors.New("at least one status is required")
	}
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, status)
	}
	query := `SELECT ` + itemColumns + ` FROM items WHERE ` + column +
		` IN (` + makePlaceholders(len(statuses)) + `) ORDER BY created_at ASC, id ASC`
	return s.queryItems(ctx, query, args...)
}

// ListRecent returns the most recently created items up to limit.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Item, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + itemColumns + ` FROM items ORDER BY created_at DESC, id DESC LIMIT ?`
	return s.queryItems(ctx, query, limit)
}

// RelayBacklog returns items whose retrieval completed but relay has not,
// bounded by the attempt ceiling. Used to rebuild the relay queue at startup.
func (s *Store) RelayBacklog(ctx context.Context, maxAttempts int) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items
        WHERE retrieval_status = ? AND local_path IS NOT NULL
          AND relay_status IN (?, ?) AND relay_attempts < ?
        ORDER BY created_at ASC, id ASC`
	return s.queryItems(ctx, query, StatusCompleted, StatusPending, StatusError, maxAttempts)
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func statusColumn(phase Phase) (string, error) {
	switch phase {
	case PhaseRetrieval:
		return "retrieval_status", nil
	case PhaseRelay:
		return "relay_status", nil
	default:
		return "", fmt.Errorf("unknown phase %q", phase)
	}
}

func attemptsColumn(phase Phase) (string, error) {
	switch phase {
	case PhaseRetrieval:
		return "retrieval_attempts", nil
	case PhaseRelay:
		return "relay_attempts", nil
	default:
		return "", fmt.Errorf("unknown phase %q", phase)
	}
}

func errorColumn(phase Phase) (string, error) {
	switch phase {
	case PhaseRetrieval:
		return "retrieval_error", nil
	case PhaseRelay:
		return "relay_error", nil
	default:
		return "", fmt.Errorf("unknown phase %q", phase)
	}
}
