package explain

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/snl-sec/snlscan/internal/model"
)

func scored(templateID, name string, sev model.Severity) model.ScoredFinding {
	return model.ScoredFinding{
		Finding: model.Finding{
			TemplateID: templateID,
			Name:       name,
			Severity:   sev,
			MatchedAt:  "https://example.com/",
		},
		Score: 36,
	}
}

func TestLocalExplain(t *testing.T) {
	t.Parallel()

	findings := []model.ScoredFinding{
		scored("missing-csp", "Missing CSP", model.SeverityMedium),
		scored("sqli-error", "SQL Injection", model.SeverityCritical),
	}

	got := Local{}.Explain(t.Context(), model.Summary{}, findings)
	if len(got) != len(findings) {
		t.Fatalf("Explain() returned %d entries, want %d", len(got), len(findings))
	}
	for i, ef := range got {
		if ef.ID != findings[i].TemplateID {
			t.Errorf("entry %d id = %q, want %q", i, ef.ID, findings[i].TemplateID)
		}
		if ef.Explanation.WhatIsWrong == "" || ef.Explanation.WhyItMatters == "" || ef.Explanation.HowToFix == "" {
			t.Errorf("entry %d has an empty explanation field: %+v", i, ef.Explanation)
		}
	}

	again := Local{}.Explain(t.Context(), model.Summary{}, findings)
	for i := range got {
		if got[i].Explanation != again[i].Explanation {
			t.Errorf("entry %d explanation not deterministic", i)
		}
	}
}

func TestClientExplain(t *testing.T) {
	t.Parallel()

	findings := []model.ScoredFinding{
		scored("missing-csp", "Missing CSP", model.SeverityMedium),
		scored("sqli-error", "SQL Injection", model.SeverityCritical),
	}

	t.Run("uses service explanations in order", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req explainRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			if len(req.Findings) != 2 || req.Findings[0].ID != "missing-csp" {
				t.Errorf("request findings = %+v", req.Findings)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("Authorization = %q, want bearer token", got)
			}

			resp := explainResponse{Findings: []model.Explanation{
				{WhatIsWrong: "w1", WhyItMatters: "m1", HowToFix: "f1"},
				{WhatIsWrong: "w2", WhyItMatters: "m2", HowToFix: "f2"},
			}}
			if err := json.NewEncoder(w).Encode(resp); err != nil {
				t.Errorf("encode response: %v", err)
			}
		}))
		defer srv.Close()

		got := NewClient(srv.URL, WithAPIKey("tok")).Explain(t.Context(), model.Summary{}, findings)
		if len(got) != 2 {
			t.Fatalf("Explain() returned %d entries, want 2", len(got))
		}
		if got[0].Explanation.WhatIsWrong != "w1" || got[1].Explanation.WhatIsWrong != "w2" {
			t.Errorf("explanations out of order: %+v", got)
		}
	})

	t.Run("short response backfills the tail", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			resp := explainResponse{Findings: []model.Explanation{
				{WhatIsWrong: "w1", WhyItMatters: "m1", HowToFix: "f1"},
			}}
			if err := json.NewEncoder(w).Encode(resp); err != nil {
				t.Errorf("encode response: %v", err)
			}
		}))
		defer srv.Close()

		got := NewClient(srv.URL).Explain(t.Context(), model.Summary{}, findings)
		if len(got) != 2 {
			t.Fatalf("Explain() returned %d entries, want 2", len(got))
		}
		if got[0].Explanation.WhatIsWrong != "w1" {
			t.Errorf("first explanation = %+v, want service text", got[0].Explanation)
		}
		if got[1].Explanation.WhatIsWrong == "" || got[1].Explanation.WhatIsWrong == "w2" {
			t.Errorf("second explanation = %+v, want local backfill", got[1].Explanation)
		}
	})

	t.Run("partial entries are rejected not padded", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			resp := explainResponse{Findings: []model.Explanation{
				{WhatIsWrong: "w1"}, // missing why and fix
				{WhatIsWrong: "w2", WhyItMatters: "m2", HowToFix: "f2"},
			}}
			if err := json.NewEncoder(w).Encode(resp); err != nil {
				t.Errorf("encode response: %v", err)
			}
		}))
		defer srv.Close()

		got := NewClient(srv.URL).Explain(t.Context(), model.Summary{}, findings)
		if got[0].Explanation.WhatIsWrong == "w1" {
			t.Error("incomplete service entry was accepted")
		}
		if got[0].Explanation.WhyItMatters == "" {
			t.Error("rejected entry was not backfilled")
		}
		if got[1].Explanation.WhatIsWrong != "w2" {
			t.Errorf("complete entry = %+v, want service text", got[1].Explanation)
		}
	})

	t.Run("malformed response falls back entirely", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if _, err := w.Write([]byte("not json at all")); err != nil {
				t.Errorf("write response: %v", err)
			}
		}))
		defer srv.Close()

		got := NewClient(srv.URL).Explain(t.Context(), model.Summary{}, findings)
		if len(got) != 2 {
			t.Fatalf("Explain() returned %d entries, want 2", len(got))
		}
		for i, ef := range got {
			if ef.Explanation.WhatIsWrong == "" || ef.Explanation.HowToFix == "" {
				t.Errorf("entry %d not backfilled: %+v", i, ef.Explanation)
			}
		}
	})

	t.Run("service error falls back entirely", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		got := NewClient(srv.URL).Explain(t.Context(), model.Summary{}, findings)
		if len(got) != 2 {
			t.Fatalf("Explain() returned %d entries, want 2", len(got))
		}
		for i, ef := range got {
			if ef.Explanation.WhatIsWrong == "" {
				t.Errorf("entry %d not backfilled after service error", i)
			}
		}
	})

	t.Run("unreachable service falls back entirely", func(t *testing.T) {
		t.Parallel()

		got := NewClient("http://127.0.0.1:1/explain").Explain(t.Context(), model.Summary{}, findings)
		if len(got) != 2 {
			t.Fatalf("Explain() returned %d entries, want 2", len(got))
		}
	})

	t.Run("empty input yields nil without a request", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
			t.Error("unexpected request for empty finding set")
		}))
		defer srv.Close()

		if got := NewClient(srv.URL).Explain(t.Context(), model.Summary{}, nil); got != nil {
			t.Errorf("Explain(nil) = %v, want nil", got)
		}
	})
}
