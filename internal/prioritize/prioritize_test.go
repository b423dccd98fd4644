package prioritize

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/snl-sec/snlscan/internal/model"
)

func finding(templateID, matchedAt string, sev model.Severity, kind string, tags ...string) model.Finding {
	return model.Finding{
		TemplateID: templateID,
		Kind:       kind,
		Name:       templateID,
		Severity:   sev,
		Tags:       tags,
		MatchedAt:  matchedAt,
	}
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		finding model.Finding
		want    float64
	}{
		{
			name:    "critical sqli over http",
			finding: finding("sqli-error", "http://a/x", model.SeverityCritical, "http", "sqli"),
			want:    10 * 2 * 0.8,
		},
		{
			name:    "medium missing header over http",
			finding: finding("x-frame-options", "http://a/", model.SeverityMedium, "http", "header"),
			want:    5 * 10 * 0.8,
		},
		{
			name:    "info kind halves confidence",
			finding: finding("tech-detect", "http://a/", model.SeverityInfo, "info", "tech"),
			want:    1 * 5 * 0.5,
		},
		{
			name:    "untagged finding uses default ease",
			finding: finding("generic", "http://a/", model.SeverityHigh, "http"),
			want:    8 * 5 * 0.8,
		},
		{
			name:    "first table entry wins over later ones",
			finding: finding("csp-and-xss", "http://a/", model.SeverityLow, "http", "xss", "csp"),
			want:    2 * 9 * 0.8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Score(tt.finding); got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnginePrioritize(t *testing.T) {
	t.Parallel()

	t.Run("empty input yields nil", func(t *testing.T) {
		t.Parallel()

		if got := New().Prioritize(nil); got != nil {
			t.Errorf("Prioritize(nil) = %v, want nil", got)
		}
	})

	t.Run("sorts by score descending", func(t *testing.T) {
		t.Parallel()

		raw := []model.Finding{
			finding("tech-detect", "http://a/", model.SeverityInfo, "info", "tech"),
			finding("sqli-error", "http://a/x", model.SeverityCritical, "http", "sqli"),
			finding("missing-csp", "http://a/", model.SeverityMedium, "http", "csp"),
		}

		got := New().Prioritize(raw)
		if len(got) != 3 {
			t.Fatalf("Prioritize() returned %d findings, want 3", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].Score > got[i-1].Score {
				t.Errorf("findings not sorted: score[%d]=%v > score[%d]=%v", i, got[i].Score, i-1, got[i-1].Score)
			}
		}
		if got[0].TemplateID != "missing-csp" {
			t.Errorf("top finding = %q, want missing-csp", got[0].TemplateID)
		}
	})

	t.Run("duplicates collapse without truncating uniques", func(t *testing.T) {
		t.Parallel()

		raw := make([]model.Finding, 0, 12)
		for i := 0; i < 9; i++ {
			raw = append(raw, finding(fmt.Sprintf("tmpl-%d", i), fmt.Sprintf("http://a/%d", i), model.SeverityMedium, "http"))
		}
		raw = append(raw,
			finding("tmpl-0", "http://a/0", model.SeverityMedium, "http"),
			finding("tmpl-1", "http://a/1", model.SeverityMedium, "http"),
			finding("tmpl-2", "http://a/2", model.SeverityMedium, "http"),
		)

		got := New().Prioritize(raw)
		if len(got) != 9 {
			t.Fatalf("Prioritize() returned %d findings, want 9 unique", len(got))
		}
		seen := make(map[string]bool)
		for _, f := range got {
			key := f.DedupKey()
			if seen[key] {
				t.Errorf("duplicate key %q in output", key)
			}
			seen[key] = true
		}
	})

	t.Run("caps distinct findings and keeps input order on ties", func(t *testing.T) {
		t.Parallel()

		raw := make([]model.Finding, 0, 15)
		for i := 0; i < 15; i++ {
			raw = append(raw, finding(fmt.Sprintf("crit-%d", i), fmt.Sprintf("http://a/%d", i), model.SeverityCritical, "http"))
		}

		got := New().Prioritize(raw)
		if len(got) != DefaultMaxIssues {
			t.Fatalf("Prioritize() returned %d findings, want %d", len(got), DefaultMaxIssues)
		}
		for i, f := range got {
			want := fmt.Sprintf("crit-%d", i)
			if f.TemplateID != want {
				t.Errorf("finding[%d] = %q, want %q (ties must keep input order)", i, f.TemplateID, want)
			}
		}
	})

	t.Run("idempotent over its own output", func(t *testing.T) {
		t.Parallel()

		raw := []model.Finding{
			finding("sqli-error", "http://a/x", model.SeverityCritical, "http", "sqli"),
			finding("missing-csp", "http://a/", model.SeverityMedium, "http", "csp"),
			finding("tech-detect", "http://a/", model.SeverityInfo, "info", "tech"),
		}

		engine := New()
		first := engine.Prioritize(raw)

		again := make([]model.Finding, 0, len(first))
		for _, f := range first {
			again = append(again, f.Finding)
		}
		second := engine.Prioritize(again)

		if len(first) != len(second) {
			t.Fatalf("second pass returned %d findings, want %d", len(second), len(first))
		}
		for i := range first {
			if first[i].TemplateID != second[i].TemplateID || first[i].Score != second[i].Score {
				t.Errorf("pass mismatch at %d: first=%q(%v) second=%q(%v)",
					i, first[i].TemplateID, first[i].Score, second[i].TemplateID, second[i].Score)
			}
		}
	})

	t.Run("custom cap", func(t *testing.T) {
		t.Parallel()

		raw := make([]model.Finding, 0, 8)
		for i := 0; i < 8; i++ {
			raw = append(raw, finding(fmt.Sprintf("tmpl-%d", i), fmt.Sprintf("http://a/%d", i), model.SeverityLow, "http"))
		}

		got := New(WithMaxIssues(3)).Prioritize(raw)
		if len(got) != 3 {
			t.Errorf("Prioritize() returned %d findings, want 3", len(got))
		}
	})
}

func TestEngineFallback(t *testing.T) {
	t.Parallel()

	raw := make([]model.Finding, 0, 12)
	for i := 0; i < 12; i++ {
		raw = append(raw, finding(fmt.Sprintf("tmpl-%d", i), fmt.Sprintf("http://a/%d", i), model.SeverityInfo, "info"))
	}

	got := New().fallback(raw)
	if len(got) != DefaultMaxIssues {
		t.Fatalf("fallback() returned %d findings, want %d", len(got), DefaultMaxIssues)
	}
	for i, f := range got {
		want := fmt.Sprintf("tmpl-%d", i)
		if f.TemplateID != want {
			t.Errorf("fallback[%d] = %q, want %q (must preserve input order)", i, f.TemplateID, want)
		}
	}
}

func TestEnginePersistArtifact(t *testing.T) {
	t.Parallel()

	t.Run("writes capped list as json", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "artifacts", "top_issues.json")
		raw := []model.Finding{
			finding("missing-csp", "http://a/", model.SeverityMedium, "http", "csp"),
			finding("sqli-error", "http://a/x", model.SeverityCritical, "http", "sqli"),
		}

		New(WithArtifactPath(path)).Prioritize(raw)

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		var persisted []model.ScoredFinding
		if err := json.Unmarshal(data, &persisted); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if len(persisted) != 2 {
			t.Errorf("persisted %d findings, want 2", len(persisted))
		}
	})

	t.Run("unwritable path does not fail the run", func(t *testing.T) {
		t.Parallel()

		raw := []model.Finding{
			finding("missing-csp", "http://a/", model.SeverityMedium, "http", "csp"),
		}

		got := New(WithArtifactPath(string([]byte{0}))).Prioritize(raw)
		if len(got) != 1 {
			t.Errorf("Prioritize() returned %d findings, want 1 despite persist failure", len(got))
		}
	})
}
