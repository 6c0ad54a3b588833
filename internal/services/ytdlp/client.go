// Package ytdlp wraps the yt-dlp command-line downloader.
package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// ProgressUpdate captures yt-dlp download progress.
type ProgressUpdate struct {
	Percent float64
	Bytes   int64
	Total   int64
}

// Result describes a finished download.
type Result struct {
	Path string
	Size int64
}

// Client defines yt-dlp download behaviour.
type Client interface {
	Download(ctx context.Context, externalID, destDir string, progress func(ProgressUpdate)) (Result, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithQuality caps the video height, e.g. "1080p".
func WithQuality(quality string) Option {
	return func(c *CLI) {
		c.quality = quality
	}
}

// WithSubtitles requests subtitle tracks for the given comma-separated
// language list.
func WithSubtitles(langs string) Option {
	return func(c *CLI) {
		c.subtitleLangs = strings.TrimSpace(langs)
	}
}

// CLI wraps the yt-dlp command-line downloader.
type CLI struct {
	binary        string
	quality       string
	subtitleLangs string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "yt-dlp", quality: "1080p"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// progressPattern matches yt-dlp --newline progress output, e.g.
// "[download]  42.7% of 120.50MiB at 3.2MiB/s ETA 00:21".
var progressPattern = regexp.MustCompile(`\[download\]\s+([0-9.]+)%\s+of\s+~?\s*([0-9.]+)([KMGT]?i?B)`)

// Download fetches the item's media into destDir and returns the final path.
func (c *CLI) Download(ctx context.Context, externalID, destDir string, progress func(ProgressUpdate)) (Result, error) {
	if externalID == "" {
		return Result{}, errors.New("external id required")
	}
	if destDir == "" {
		return Result{}, errors.New("destination directory required")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create destination: %w", err)
	}

	args := []string{
		"--newline",
		"--no-playlist",
		"-f", formatSelector(c.quality),
		"--merge-output-format", "mp4",
		"-o", filepath.Join(destDir, "%(id)s.%(ext)s"),
	}
	if c.subtitleLangs != "" {
		args = append(args, "--write-subs", "--sub-langs", c.subtitleLangs)
	}
	args = append(args, "https://www.youtube.com/watch?v="+externalID)

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start yt-dlp: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		update, ok := parseProgressLine(scanner.Text())
		if ok && progress != nil {
			progress(update)
		}
	}
	if err := scanner.Err(); err != nil {
		_ = cmd.Wait()
		return Result{}, fmt.Errorf("read yt-dlp output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return Result{}, fmt.Errorf("yt-dlp failed: %s: %w", lastLine(detail), err)
		}
		return Result{}, fmt.Errorf("yt-dlp failed: %w", err)
	}

	return locateOutput(destDir, externalID)
}

func parseProgressLine(line string) (ProgressUpdate, bool) {
	match := progressPattern.FindStringSubmatch(line)
	if match == nil {
		return ProgressUpdate{}, false
	}
	percent, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return ProgressUpdate{}, false
	}
	total, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return ProgressUpdate{}, false
	}
	totalBytes := int64(total * float64(unitMultiplier(match[3])))
	return ProgressUpdate{
		Percent: percent,
		Bytes:   int64(float64(totalBytes) * percent / 100),
		Total:   totalBytes,
	}, true
}

func unitMultiplier(unit string) int64 {
	switch strings.ToUpper(strings.TrimSuffix(strings.TrimSuffix(unit, "B"), "i")) {
	case "K":
		return 1 << 10
	case "M":
		return 1 << 20
	case "G":
		return 1 << 30
	case "T":
		return 1 << 40
	default:
		return 1
	}
}

// formatSelector translates a quality label into a yt-dlp format expression.
func formatSelector(quality string) string {
	height := 1080
	trimmed := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(quality)), "p")
	if trimmed == "best" || trimmed == "" {
		return "bestvideo+bestaudio/best"
	}
	if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
		height = parsed
	}
	return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", height, height)
}

// locateOutput finds the merged file yt-dlp left behind. Partial downloads
// carry a .part suffix and are ignored.
func locateOutput(destDir, externalID string) (Result, error) {
	matches, err := filepath.Glob(filepath.Join(destDir, externalID+".*"))
	if err != nil {
		return Result{}, fmt.Errorf("locate output: %w", err)
	}
	var best Result
	for _, path := range matches {
		if strings.HasSuffix(path, ".part") || strings.HasSuffix(path, ".ytdl") {
			continue
		}
		if isSubtitle(path) {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Result{}, err
		}
		if info.Size() > best.Size {
			best = Result{Path: path, Size: info.Size()}
		}
	}
	if best.Path == "" {
		return Result{}, fmt.Errorf("yt-dlp produced no output for %s", externalID)
	}
	return best, nil
}

func isSubtitle(path string) bool {
	switch filepath.Ext(path) {
	case ".vtt", ".srt", ".ass":
		return true
	}
	return false
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

var _ Client = (*CLI)(nil)
