package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/gorewood/parallelus/internal/lifecycle"
	"github.com/gorewood/parallelus/internal/output"
)

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{59 * time.Second, "00:59"},
		{90 * time.Second, "01:30"},
		{125*time.Minute + 7*time.Second, "125:07"},
		{-time.Second, "00:00"},
	}
	for _, tt := range tests {
		if got := formatClock(tt.in); got != tt.want {
			t.Errorf("formatClock(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintStatusTable(t *testing.T) {
	age := 4 * time.Minute
	last := time.Date(2026, 2, 7, 16, 6, 0, 0, time.UTC)
	rows := []lifecycle.Row{
		{ID: "a", Type: "throwaway", Slug: "demo", Status: "running", Deliverables: "0/1 waiting",
			RunTime: 10 * time.Minute, LogAge: &age, LastLog: &last, Handle: "%3"},
		{ID: "b", Type: "worktree", Slug: "other", Status: "verified", Deliverables: "-", Handle: "manual"},
	}

	buf := new(bytes.Buffer)
	printStatusTable(output.NewPrinter(buf, false, false), rows, func(id string) string {
		if id == "a" {
			return "!"
		}
		return ""
	})

	out := buf.String()
	for _, want := range append(statusHeaders, "! a", "10:00", "04:00", "2026-02-07 16:06:00", "%3", "manual") {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestPrintStatusTable_Empty(t *testing.T) {
	buf := new(bytes.Buffer)
	printStatusTable(output.NewPrinter(buf, false, false), nil, nil)
	if !strings.Contains(buf.String(), "No subagents recorded.") {
		t.Errorf("output = %q", buf.String())
	}
}
