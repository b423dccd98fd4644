package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snl-sec/snlscan/internal/config"
	"github.com/snl-sec/snlscan/internal/model"
)

// TestNewScanCmd tests the scan command creation.
func TestNewScanCmd(t *testing.T) {
	t.Parallel()

	cmd := NewScanCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "scan [url]" {
			t.Errorf("expected use 'scan [url]', got %q", cmd.Use)
		}
	})

	t.Run("has short description", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" {
			t.Error("expected non-empty short description")
		}
	})

	t.Run("has mode flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("mode")
		if flag == nil {
			t.Fatal("expected mode flag")
		}
		if flag.DefValue != "quick" {
			t.Errorf("expected default 'quick', got %q", flag.DefValue)
		}
	})

	t.Run("has batch flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("batch")
		if flag == nil {
			t.Fatal("expected batch flag")
		}
		if flag.Shorthand != "b" {
			t.Errorf("expected shorthand 'b', got %q", flag.Shorthand)
		}
	})

	t.Run("has report format flags", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{"json", "markdown", "output"} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected %s flag", name)
			}
		}
	})
}

// TestBuildScanConfig tests flag and config file merging.
func TestBuildScanConfig(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		cmd := NewScanCmd()
		if err := cmd.ParseFlags(nil); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildScanConfig(cmd, []string{"https://shop.example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Mode != model.ModeQuick {
			t.Errorf("expected quick mode, got %q", cfg.Mode)
		}
		if cfg.CrawlDepth != config.DefaultCrawlDepth {
			t.Errorf("expected default crawl depth, got %d", cfg.CrawlDepth)
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0] != "https://shop.example.com" {
			t.Errorf("unexpected targets: %v", cfg.Targets)
		}
	})

	t.Run("deep mode and overrides", func(t *testing.T) {
		t.Parallel()

		cmd := NewScanCmd()
		args := []string{
			"--mode", "deep",
			"--depth", "4",
			"--detection-timeout", "5m",
			"--max-issues", "5",
			"--batch", "2",
		}
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildScanConfig(cmd, []string{"https://shop.example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Mode != model.ModeDeep {
			t.Errorf("expected deep mode, got %q", cfg.Mode)
		}
		if cfg.CrawlDepth != 4 {
			t.Errorf("expected crawl depth 4, got %d", cfg.CrawlDepth)
		}
		if cfg.DetectionTimeout != 5*time.Minute {
			t.Errorf("expected 5m detection timeout, got %s", cfg.DetectionTimeout)
		}
		if cfg.MaxIssues != 5 {
			t.Errorf("expected max issues 5, got %d", cfg.MaxIssues)
		}
		if cfg.Concurrency != 2 {
			t.Errorf("expected concurrency 2, got %d", cfg.Concurrency)
		}
	})

	t.Run("conflicting report formats fail validation", func(t *testing.T) {
		t.Parallel()

		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"--json", "--markdown"}); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildScanConfig(cmd, []string{"https://shop.example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if err := cfg.Validate(); !errors.Is(err, config.ErrConflictingReportFormats) {
			t.Errorf("expected ErrConflictingReportFormats, got %v", err)
		}
	})

	t.Run("loads explicit config file", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := "tools:\n  detection: /opt/tools/nuclei\nlisten_addr: 127.0.0.1:9000\n"
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"-c", configPath}); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildScanConfig(cmd, []string{"https://shop.example.com"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.DetectionToolPath != "/opt/tools/nuclei" {
			t.Errorf("expected config file tool path, got %q", cfg.DetectionToolPath)
		}
		if cfg.ListenAddr != "127.0.0.1:9000" {
			t.Errorf("expected config file listen addr, got %q", cfg.ListenAddr)
		}
	})

	t.Run("missing explicit config file fails", func(t *testing.T) {
		t.Parallel()

		cmd := NewScanCmd()
		if err := cmd.ParseFlags([]string{"-c", filepath.Join(t.TempDir(), "missing.yaml")}); err != nil {
			t.Fatal(err)
		}

		if _, err := buildScanConfig(cmd, []string{"https://shop.example.com"}); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("rejects invalid targets", func(t *testing.T) {
		t.Parallel()

		cmd := NewScanCmd()
		if err := cmd.ParseFlags(nil); err != nil {
			t.Fatal(err)
		}

		if _, err := buildScanConfig(cmd, []string{"ftp://files.example.com"}); err == nil {
			t.Error("expected error for non-http scheme")
		}
	})
}

// TestNormalizeTarget tests CLI target normalization.
func TestNormalizeTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "full https url",
			input: "https://shop.example.com/login",
			want:  "https://shop.example.com/login",
		},
		{
			name:  "http url preserved",
			input: "http://shop.example.com",
			want:  "http://shop.example.com",
		},
		{
			name:  "bare hostname gets https",
			input: "shop.example.com",
			want:  "https://shop.example.com",
		},
		{
			name:  "hostname with port",
			input: "localhost:8080",
			want:  "https://localhost:8080",
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  shop.example.com  ",
			want:  "https://shop.example.com",
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "whitespace only",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			input:   "ftp://files.example.com",
			wantErr: true,
		},
		{
			name:    "scheme without host",
			input:   "https://",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := normalizeTarget(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("normalizeTarget(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeTarget(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("normalizeTarget(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
