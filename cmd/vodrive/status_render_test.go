package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"vodrive/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("vodrive", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "vodrive:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("vodrive", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestStateLabelAndKind(t *testing.T) {
	tests := []struct {
		state string
		label string
		kind  statusKind
	}{
		{"tracking", "Tracking", statusOK},
		{"uninitialized", "Uninitialized", statusInfo},
		{"init_failed", "Init Failed", statusWarn},
		{"lost", "Lost", statusWarn},
		{"terminated", "Terminated", statusError},
		{"", "Unknown", statusError},
	}
	for _, tt := range tests {
		if got := stateLabel(tt.state); got != tt.label {
			t.Fatalf("stateLabel(%q) = %q, want %q", tt.state, got, tt.label)
		}
		if got := engineStateKind(tt.state); got != tt.kind {
			t.Fatalf("engineStateKind(%q) = %v, want %v", tt.state, got, tt.kind)
		}
	}
}

func TestPreflightLines(t *testing.T) {
	report := preflight.Report{Checks: []preflight.Result{
		{Name: "calibration", Passed: true, Detail: "/etc/camera.txt"},
		{Name: "gamma", Optional: true, Detail: "not readable", Hint: "photometric response is skipped"},
		{Name: "state_dir", Detail: "missing"},
	}}
	lines := preflightLines(report, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[OK] /etc/camera.txt") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[WARN] not readable (photometric response is skipped)") {
		t.Fatalf("unexpected optional line %q", lines[1])
	}
	if !strings.Contains(lines[2], "[ERROR] missing") {
		t.Fatalf("unexpected failed line %q", lines[2])
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestRenderTableFooter(t *testing.T) {
	out := renderTable([]string{"Run", "Poses"}, [][]string{{"a", "3"}, {"b"}}, []columnAlignment{alignLeft, alignRight}, "2 runs", "3")
	for _, want := range []string{"RUN", "POSES", "2 RUNS"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected table to contain %q:\n%s", want, out)
		}
	}
}
