// Package share copies retrieved files onto a mounted remote share.
package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"trawler/internal/config"
	"trawler/internal/pipeline"
	"trawler/internal/store"
)

// copyChunkSize balances syscall overhead against cancellation latency.
const copyChunkSize = 1 << 20

// ErrSizeMismatch reports that the copied file does not match the source.
var ErrSizeMismatch = errors.New("relayed file size mismatch")

var statFile = os.Stat

// Transferrer copies files into the configured share directories. Short
// items land in a separate subdirectory when one is configured.
type Transferrer struct {
	targetDir string
	shortsDir string
	shortMax  int
}

// NewTransferrer builds a Transferrer from configuration.
func NewTransferrer(cfg *config.Config) *Transferrer {
	return &Transferrer{
		targetDir: cfg.Relay.TargetDir,
		shortsDir: cfg.Relay.ShortsDir,
		shortMax:  cfg.Pipelines.ShortMaxDuration,
	}
}

// Transfer copies the item's local file to the share and verifies the
// written size before reporting success.
func (t *Transferrer) Transfer(ctx context.Context, item *store.Item, progress pipeline.ProgressFunc) (pipeline.RelayResult, error) {
	if item.LocalPath == "" {
		return pipeline.RelayResult{}, errors.New("item has no local file")
	}

	destDir := t.destinationFor(item)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return pipeline.RelayResult{}, fmt.Errorf("create share directory: %w", err)
	}
	destPath := filepath.Join(destDir, filepath.Base(item.LocalPath))

	if _, err := copyFile(ctx, item.LocalPath, destPath, progress); err != nil {
		return pipeline.RelayResult{}, err
	}

	srcInfo, err := os.Stat(item.LocalPath)
	if err != nil {
		return pipeline.RelayResult{}, fmt.Errorf("stat source: %w", err)
	}
	// Stat the landed file rather than trusting the write counter. A share
	// that silently truncates would otherwise go unnoticed.
	destInfo, err := statFile(destPath)
	if err != nil {
		return pipeline.RelayResult{}, fmt.Errorf("stat destination: %w", err)
	}
	if destInfo.Size() != srcInfo.Size() {
		_ = os.Remove(destPath)
		return pipeline.RelayResult{}, fmt.Errorf("%w: destination has %d of %d bytes", ErrSizeMismatch, destInfo.Size(), srcInfo.Size())
	}

	return pipeline.RelayResult{RemoteRef: destPath}, nil
}

func (t *Transferrer) destinationFor(item *store.Item) string {
	if t.shortsDir != "" && item.Duration > 0 && item.Duration <= t.shortMax {
		return t.shortsDir
	}
	return t.targetDir
}

// copyFile writes src to dest via a temp name, reporting progress per chunk,
// and renames into place once complete.
func copyFile(ctx context.Context, src, dest string, progress pipeline.ProgressFunc) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	total := info.Size()

	tempPath := dest + ".part"
	out, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("create destination: %w", err)
	}

	var written int64
	buf := make([]byte, copyChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			_ = os.Remove(tempPath)
			return written, err
		}
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				_ = os.Remove(tempPath)
				return written, fmt.Errorf("write destination: %w", writeErr)
			}
			written += int64(n)
			if progress != nil && total > 0 {
				progress(float64(written)/float64(total)*100, written, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			_ = os.Remove(tempPath)
			return written, fmt.Errorf("read source: %w", readErr)
		}
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(tempPath)
		return written, fmt.Errorf("close destination: %w", err)
	}
	if err := os.Rename(tempPath, dest); err != nil {
		_ = os.Remove(tempPath)
		return written, fmt.Errorf("finalize destination: %w", err)
	}
	return written, nil
}

var _ pipeline.Transferrer = (*Transferrer)(nil)
