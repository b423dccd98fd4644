package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestGetVersion(t *testing.T) {
	t.Parallel()

	// Either the ldflags value, build info, or "(devel)"
	if getVersion() == "" {
		t.Error("getVersion() returned empty string")
	}
}

func TestGetCommit(t *testing.T) {
	t.Parallel()

	if getCommit() == "" {
		t.Error("getCommit() returned empty string")
	}
}

func TestGetDate(t *testing.T) {
	t.Parallel()

	if getDate() == "" {
		t.Error("getDate() returned empty string")
	}
}

func TestNewVersionCmd(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCmd()

	t.Run("command has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "version" {
			t.Errorf("expected Use to be 'version', got %q", cmd.Use)
		}
	})

	t.Run("prints version information", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cmd := NewVersionCmd()
		cmd.SetOut(&buf)

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.HasPrefix(output, "snlscan ") {
			t.Errorf("expected output to start with binary name, got %q", output)
		}
		if !strings.Contains(output, "commit ") {
			t.Errorf("expected commit in output, got %q", output)
		}
		if !strings.Contains(output, "built ") {
			t.Errorf("expected build date in output, got %q", output)
		}
	})
}

func TestBuildSetting(t *testing.T) {
	t.Parallel()

	// Test binaries carry no VCS stamp, so unknown keys must come back
	// empty rather than panic.
	if got := buildSetting("no.such.key"); got != "" {
		t.Errorf("buildSetting(no.such.key) = %q, want empty", got)
	}
}
