package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotRelayable indicates a relay transition was attempted on an item
// whose retrieval has not completed with a recorded local file.
var ErrNotRelayable = errors.New("item is not ready for relay")

// ErrNotPending indicates a start transition raced with another writer.
var ErrNotPending = errors.New("item is not pending")

// MarkRetrievalStarted moves a pending item to in_progress and increments the
// attempt counter in the same statement.
func (s *Store) MarkRetrievalStarted(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE items
         SET retrieval_status = ?, retrieval_attempts = retrieval_attempts + 1, retrieval_error = NULL
         WHERE id = ? AND retrieval_status = ?`,
		StatusInProgress, id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark retrieval started: %w", err)
	}
	return requireRow(res.RowsAffected())
}

// MarkRetrievalCompleted records a successful fetch.
func (s *Store) MarkRetrievalCompleted(ctx context.Context, id int64, localPath string, localSize int64) error {
	now := time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE items
         SET retrieval_status = ?, retrieval_error = NULL, local_path = ?, local_size = ?, retrieved_at = ?
         WHERE id = ?`,
		StatusCompleted, nullableString(localPath), localSize, timestamp(now), id,
	)
	if err != nil {
		return fmt.Errorf("mark retrieval completed: %w", err)
	}
	return nil
}

// MarkRetrievalFailed records a failed fetch with truncated error text.
func (s *Store) MarkRetrievalFailed(ctx context.Context, id int64, message string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE items SET retrieval_status = ?, retrieval_error = ? WHERE id = ?`,
		StatusError, truncateError(message), id,
	)
	if err != nil {
		return fmt.Errorf("mark retrieval failed: %w", err)
	}
	return nil
}

// MarkRelayStarted moves a pending relay to in_progress, enforcing the
// invariant that relay only begins after retrieval completed with a local
// file. Returns ErrNotRelayable when the precondition does not hold.
func (s *Store) MarkRelayStarted(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE items
         SET relay_status = ?, relay_attempts = relay_attempts + 1, relay_error = NULL
         WHERE id = ? AND relay_status IN (?, ?)
           AND retrieval_status = ? AND local_path IS NOT NULL`,
		StatusInProgress, id, StatusPending, StatusError, StatusCompleted,
	)
	if err != nil {
		return fmt.Errorf("mark relay started: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotRelayable
	}
	return nil
}

// MarkRelayCompleted records a successful transfer.
func (s *Store) MarkRelayCompleted(ctx context.Context, id int64, remoteRef string) error {
	now := time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE items
         SET relay_status = ?, relay_error = NULL, remote_ref = ?, relayed_at = ?
         WHERE id = ?`,
		StatusCompleted, nullableString(remoteRef), timestamp(now), id,
	)
	if err != nil {
		return fmt.Errorf("mark relay completed: %w", err)
	}
	return nil
}

// MarkRelayFailed records a failed transfer with truncated error text.
func (s *Store) MarkRelayFailed(ctx context.Context, id int64, message string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE items SET relay_status = ?, relay_error = ? WHERE id = ?`,
		StatusError, truncateError(message), id,
	)
	if err != nil {
		return fmt.Errorf("mark relay failed: %w", err)
	}
	return nil
}

// ClearLocalFile clears the local path after post-relay cleanup removed it.
func (s *Store) ClearLocalFile(ctx context.Context, id int64) error {
	_, err := s.execWithRetry(ctx, `UPDATE items SET local_path = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear local file: %w", err)
	}
	return nil
}

// ResetStuck forces every in_progress item of the phase back to pending.
// Progress slots are empty at startup, so any persisted in_progress state
// cannot correspond to live work. Idempotent.
func (s *Store) ResetStuck(ctx context.Context, phase Phase) (int64, error) {
	column, err := statusColumn(phase)
	if err != nil {
		return 0, err
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE items SET `+column+` = ? WHERE `+column+` = ?`,
		StatusPending, StatusInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck %s items: %w", phase, err)
	}
	return res.RowsAffected()
}

// ResetToPending moves the listed items of the phase back to pending and
// clears their error text. Used by the orphan watchdog and retry passes.
func (s *Store) ResetToPending(ctx context.Context, phase Phase, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	column, err := statusColumn(phase)
	if err != nil {
		return 0, err
	}
	errCol, err := errorColumn(phase)
	if err != nil {
		return 0, err
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, StatusPending)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE items SET ` + column + ` = ?, ` + errCol + ` = NULL
        WHERE id IN (` + makePlaceholders(len(ids)) + `)`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset %s items to pending: %w", phase, err)
	}
	return res.RowsAffected()
}

// RetryCandidates returns errored items of the phase below the attempt
// ceiling, oldest first. Callers filter by the retry classifier before
// resetting.
func (s *Store) RetryCandidates(ctx context.Context, phase Phase, maxAttempts int) ([]*Item, error) {
	column, err := statusColumn(phase)
	if err != nil {
		return nil, err
	}
	attempts, err := attemptsColumn(phase)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + itemColumns + ` FROM items
        WHERE ` + column + ` = ? AND ` + attempts + ` < ?
        ORDER BY created_at ASC, id ASC`
	return s.queryItems(ctx, query, StatusError, maxAttempts)
}

func requireRow(affected int64, err error) error {
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotPending
	}
	return nil
}
