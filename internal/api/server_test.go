package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/snl-sec/snlscan/internal/auth"
	"github.com/snl-sec/snlscan/internal/jobs"
	"github.com/snl-sec/snlscan/internal/model"
)

// fakeRunner records Run calls and optionally drives the job lifecycle.
type fakeRunner struct {
	mu      sync.Mutex
	scanIDs []string
	drive   func(ctx context.Context, scanID string)
	done    chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, scanID string) {
	f.mu.Lock()
	f.scanIDs = append(f.scanIDs, scanID)
	f.mu.Unlock()
	if f.drive != nil {
		f.drive(ctx, scanID)
	}
	if f.done != nil {
		f.done <- struct{}{}
	}
}

func submitBody(t *testing.T, target, mode string) *bytes.Reader {
	t.Helper()

	data, err := json.Marshal(submitRequest{Target: target, Mode: mode})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return bytes.NewReader(data)
}

func decodeResponse[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestSubmitScan(t *testing.T) {
	t.Parallel()

	t.Run("accepts and runs in the background", func(t *testing.T) {
		t.Parallel()

		registry := jobs.NewRegistry()
		runner := &fakeRunner{
			done: make(chan struct{}, 1),
			drive: func(ctx context.Context, scanID string) {
				if err := registry.Start(ctx, scanID); err != nil {
					t.Errorf("Start() error = %v", err)
					return
				}
				if err := registry.Complete(ctx, scanID, &model.ScanResult{}); err != nil {
					t.Errorf("Complete() error = %v", err)
				}
			},
		}
		srv := httptest.NewServer(NewServer(registry, runner).Handler())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/scan", "application/json",
			submitBody(t, "https://example.com", "deep"))
		if err != nil {
			t.Fatalf("POST /scan error = %v", err)
		}
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("status = %d, want 202", resp.StatusCode)
		}
		accepted := decodeResponse[submitResponse](t, resp)
		if accepted.ScanID == "" || accepted.Status != model.StatusPending {
			t.Errorf("response = %+v", accepted)
		}

		select {
		case <-runner.done:
		case <-time.After(2 * time.Second):
			t.Fatal("background runner never invoked")
		}

		job, err := registry.Get(accepted.ScanID, "")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if job.Mode != model.ModeDeep {
			t.Errorf("mode = %s, want deep", job.Mode)
		}
		if job.Status != model.StatusCompleted {
			t.Errorf("status = %s, want completed", job.Status)
		}
	})

	t.Run("rejects invalid targets", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(NewServer(jobs.NewRegistry(), &fakeRunner{}).Handler())
		defer srv.Close()

		for _, target := range []string{"", "example.com", "ftp://example.com", "https://"} {
			resp, err := http.Post(srv.URL+"/scan", "application/json", submitBody(t, target, ""))
			if err != nil {
				t.Fatalf("POST /scan error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("target %q: status = %d, want 400", target, resp.StatusCode)
			}
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(NewServer(jobs.NewRegistry(), &fakeRunner{}).Handler())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/scan", "application/json", bytes.NewReader([]byte("{")))
		if err != nil {
			t.Fatalf("POST /scan error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestGetAndListScans(t *testing.T) {
	t.Parallel()

	registry := jobs.NewRegistry()
	job := registry.Create(t.Context(), "https://example.com", model.ModeQuick, "")
	srv := httptest.NewServer(NewServer(registry, &fakeRunner{}).Handler())
	t.Cleanup(srv.Close)

	t.Run("get by id", func(t *testing.T) {
		t.Parallel()

		resp, err := http.Get(srv.URL + "/scan/" + job.ScanID)
		if err != nil {
			t.Fatalf("GET /scan/{id} error = %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		got := decodeResponse[model.ScanJob](t, resp)
		if got.ScanID != job.ScanID || got.Target != "https://example.com" {
			t.Errorf("job = %+v", got)
		}
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		t.Parallel()

		resp, err := http.Get(srv.URL + "/scan/no-such-id")
		if err != nil {
			t.Fatalf("GET /scan/{id} error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("list", func(t *testing.T) {
		t.Parallel()

		resp, err := http.Get(srv.URL + "/scans")
		if err != nil {
			t.Fatalf("GET /scans error = %v", err)
		}
		got := decodeResponse[listResponse](t, resp)
		if len(got.Scans) != 1 {
			t.Errorf("scans = %+v, want 1", got.Scans)
		}
	})
}

func TestCancelAndDeleteScan(t *testing.T) {
	t.Parallel()

	registry := jobs.NewRegistry()
	job := registry.Create(t.Context(), "https://example.com", model.ModeQuick, "")
	srv := httptest.NewServer(NewServer(registry, &fakeRunner{}).Handler())
	defer srv.Close()

	t.Run("delete active scan conflicts", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/scan/"+job.ScanID, nil)
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})

	t.Run("cancel then delete", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/scan/"+job.ScanID+"/cancel", "application/json", nil)
		if err != nil {
			t.Fatalf("POST cancel error = %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("cancel status = %d, want 200", resp.StatusCode)
		}
		got := decodeResponse[model.ScanJob](t, resp)
		if got.Status != model.StatusCancelled {
			t.Errorf("status = %s, want cancelled", got.Status)
		}

		// cancelling again conflicts
		again, err := http.Post(srv.URL+"/scan/"+job.ScanID+"/cancel", "application/json", nil)
		if err != nil {
			t.Fatalf("POST cancel error = %v", err)
		}
		again.Body.Close()
		if again.StatusCode != http.StatusConflict {
			t.Errorf("second cancel status = %d, want 409", again.StatusCode)
		}

		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/scan/"+job.ScanID, nil)
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		deleted, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE error = %v", err)
		}
		deleted.Body.Close()
		if deleted.StatusCode != http.StatusNoContent {
			t.Errorf("delete status = %d, want 204", deleted.StatusCode)
		}
	})
}

func TestAuthentication(t *testing.T) {
	t.Parallel()

	const secret = "api-test-secret"
	registry := jobs.NewRegistry()
	verifier := auth.NewVerifier(secret)
	srv := httptest.NewServer(NewServer(registry, &fakeRunner{}, WithVerifier(verifier)).Handler())
	defer srv.Close()

	tokenFor := func(t *testing.T, subject string) string {
		t.Helper()

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": subject,
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		s, err := token.SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return s
	}

	do := func(t *testing.T, method, path, token string) *http.Response {
		t.Helper()

		req, err := http.NewRequest(method, srv.URL+path, submitBody(t, "https://example.com", ""))
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s error = %v", method, path, err)
		}
		return resp
	}

	t.Run("missing token is 401", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/scan", "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("health needs no token", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("GET /health error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("jobs are scoped to the token subject", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/scan", tokenFor(t, "alice"))
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("submit status = %d, want 202", resp.StatusCode)
		}
		accepted := decodeResponse[submitResponse](t, resp)

		foreign := do(t, http.MethodGet, "/scan/"+accepted.ScanID, tokenFor(t, "bob"))
		foreign.Body.Close()
		if foreign.StatusCode != http.StatusNotFound {
			t.Errorf("foreign get status = %d, want 404", foreign.StatusCode)
		}

		own := do(t, http.MethodGet, "/scan/"+accepted.ScanID, tokenFor(t, "alice"))
		own.Body.Close()
		if own.StatusCode != http.StatusOK {
			t.Errorf("own get status = %d, want 200", own.StatusCode)
		}
	})
}
