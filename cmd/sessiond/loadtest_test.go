package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoadtestReportsExportedMetrics(t *testing.T) {
	cmd := newLoadtestCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--sessions", "8", "--users", "2", "--concurrency", "2", "--ops", "16"})
	t.Setenv("REDIS_ADDR", "")

	if err := cmd.Execute(); err != nil {
		t.Fatalf("loadtest failed: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"using miniredis",
		"gosession_session_created_total 8",
		`gosession_validate_latency_seconds_bucket{le="+Inf"} 16`,
		"gosession_validate_latency_seconds_count 16",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output:\n%s", want, got)
		}
	}
}

func TestLoadtestRejectsNonPositiveFlags(t *testing.T) {
	cmd := newLoadtestCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--ops", "0"})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for zero ops")
	}
}
