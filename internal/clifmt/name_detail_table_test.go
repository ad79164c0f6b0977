package clifmt

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintNameDetailTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	PrintNameDetailTable(&buf, NameDetailTableOptions{Title: "Engines"})
	out := buf.String()
	if !strings.Contains(out, "Engines (0)") {
		t.Fatalf("expected title with count, got %q", out)
	}
	if !strings.Contains(out, "No entries.") {
		t.Fatalf("expected default empty text, got %q", out)
	}
}

func TestPrintNameDetailTableRowsAndWrapping(t *testing.T) {
	var buf bytes.Buffer
	PrintNameDetailTable(&buf, NameDetailTableOptions{
		Rows: []NameDetailRow{
			{Name: "codex", Detail: "found at /usr/local/bin/codex", Status: RowOK},
			{Name: "pi", Detail: "binary \"pi\" not found on PATH", Status: RowWarn},
		},
		NameHeader:     "ENGINE",
		DetailHeader:   "AVAILABILITY",
		MinDetailWidth: 12,
		DefaultWidth:   30,
	})
	out := buf.String()
	for _, want := range []string{"ENGINE", "AVAILABILITY", "codex", "found at", "pi", "not found on PATH"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestWrapTextRunesSplitsLongWords(t *testing.T) {
	lines := wrapTextRunes("abcdefghij", 4)
	if len(lines) != 3 || lines[0] != "abcd" || lines[1] != "efgh" || lines[2] != "ij" {
		t.Fatalf("unexpected wrap result: %#v", lines)
	}
}

func TestPadRightRunesNoTruncation(t *testing.T) {
	if got := padRightRunes("abc", 2); got != "abc" {
		t.Fatalf("expected no truncation for width shorter than input, got %q", got)
	}
}
