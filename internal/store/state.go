package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// GetState reads a raw app-state value. Missing keys return "" without error.
func (s *Store) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT value FROM app_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %q: %w", key, err)
	}
	return value, nil
}

// PutState writes a raw app-state value.
func (s *Store) PutState(ctx context.Context, key, value string) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO app_state (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, timestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put state %q: %w", key, err)
	}
	return nil
}

// GetStateJSON decodes a JSON app-state value into out. Missing keys leave
// out untouched and report found=false.
func (s *Store) GetStateJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, err := s.GetState(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode state %q: %w", key, err)
	}
	return true, nil
}

// PutStateJSON encodes value as JSON and stores it.
func (s *Store) PutStateJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %q: %w", key, err)
	}
	return s.PutState(ctx, key, string(raw))
}
