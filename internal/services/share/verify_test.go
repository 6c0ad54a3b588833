package share

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"trawler/internal/store"
	"trawler/internal/testsupport"
)

type shrunkFileInfo struct {
	os.FileInfo
	size int64
}

func (s shrunkFileInfo) Size() int64 { return s.size }

func TestTransferRejectsTruncatedDestination(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithRelayEnabled())
	tr := NewTransferrer(cfg)

	local := filepath.Join(t.TempDir(), "vid-7.mp4")
	if err := os.WriteFile(local, make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}

	original := statFile
	statFile = func(name string) (os.FileInfo, error) {
		info, err := os.Stat(name)
		if err != nil {
			return nil, err
		}
		return shrunkFileInfo{FileInfo: info, size: info.Size() - 1}, nil
	}
	t.Cleanup(func() { statFile = original })

	item := &store.Item{ID: 7, LocalPath: local, Duration: 600}
	_, err := tr.Transfer(context.Background(), item, nil)
	if !errors.Is(err, ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}

	destPath := filepath.Join(cfg.Relay.TargetDir, "vid-7.mp4")
	if _, err := os.Stat(destPath); !os.IsNotExist(err) {
		t.Fatal("expected truncated destination removed")
	}
}
