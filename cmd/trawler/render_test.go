package main

import (
	"strings"
	"testing"

	"trawler/internal/ipc"
)

func TestItemPhaseSummary(t *testing.T) {
	cases := []struct {
		name string
		item ipc.Item
		want string
	}{
		{
			name: "awaiting retrieval",
			item: ipc.Item{RetrievalStatus: "pending", RelayStatus: "pending"},
			want: "retrieval pending",
		},
		{
			name: "retrieval error carries reason",
			item: ipc.Item{RetrievalStatus: "error", RetrievalError: "timed out"},
			want: "retrieval error: timed out",
		},
		{
			name: "retrieved and waiting for relay",
			item: ipc.Item{RetrievalStatus: "completed", RelayStatus: "pending"},
			want: "relay pending",
		},
		{
			name: "fully relayed",
			item: ipc.Item{RetrievalStatus: "completed", RelayStatus: "completed"},
			want: "relayed",
		},
		{
			name: "relay error",
			item: ipc.Item{RetrievalStatus: "completed", RelayStatus: "error", RelayError: "broken pipe"},
			want: "relay error: broken pipe",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := itemPhaseSummary(tc.item); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 40); got != "short" {
		t.Fatalf("short strings should pass through, got %q", got)
	}
	long := strings.Repeat("x", 50)
	got := truncate(long, 40)
	if len(got) != 43 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected truncation: %q", got)
	}
}

func TestBuildPhaseRows(t *testing.T) {
	rows := buildPhaseRows(
		map[string]int{"pending": 3, "error": 1},
		map[string]int{"pending": 1, "completed": 2},
	)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %v", len(rows), rows)
	}
	// Sorted by status name: completed, error, pending.
	if rows[0][0] != "completed" || rows[0][2] != "2" {
		t.Fatalf("unexpected first row: %v", rows[0])
	}
	if rows[2][0] != "pending" || rows[2][1] != "3" || rows[2][2] != "1" {
		t.Fatalf("unexpected pending row: %v", rows[2])
	}
}

func TestPausedSummary(t *testing.T) {
	kind, text := pausedSummary(map[string]bool{"relay": false, "retrieval-standard": false, "retrieval-short": false})
	if kind != statusOK || text != "all pipelines active" {
		t.Fatalf("unexpected summary: %v %q", kind, text)
	}

	kind, text = pausedSummary(map[string]bool{"relay": true, "retrieval-standard": false, "retrieval-short": false})
	if kind != statusWarn || text != "paused: relay" {
		t.Fatalf("unexpected summary: %v %q", kind, text)
	}

	kind, text = pausedSummary(map[string]bool{"relay": true, "retrieval-standard": true, "retrieval-short": true})
	if kind != statusWarn || text != "all pipelines paused" {
		t.Fatalf("unexpected summary: %v %q", kind, text)
	}
}

func TestRenderTableAlignsColumns(t *testing.T) {
	out := renderTable(
		[]string{"ID", "Title"},
		[][]string{{"1", "First"}, {"22", "Second"}},
		[]columnAlignment{alignRight, alignLeft},
	)
	if !strings.Contains(out, "First") || !strings.Contains(out, "Second") {
		t.Fatalf("table missing rows:\n%s", out)
	}
	if !strings.Contains(out, "ID") {
		t.Fatalf("table missing header:\n%s", out)
	}
}

func TestRenderStatusLine(t *testing.T) {
	line := renderStatusLine("Daemon", statusOK, "pid 42", false)
	if !strings.Contains(line, "[OK] pid 42") || !strings.Contains(line, "Daemon:") {
		t.Fatalf("unexpected line: %q", line)
	}

	colored := renderStatusLine("Daemon", statusError, "not running", true)
	if !strings.HasPrefix(colored, ansiRed) || !strings.HasSuffix(colored, ansiReset) {
		t.Fatalf("expected colorized output, got %q", colored)
	}
}
