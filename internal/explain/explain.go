package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/snl-sec/snlscan/internal/model"
)

// Explainer produces one explained finding per prioritized finding, in
// the same order. Implementations must return exactly len(findings)
// entries and never fail the scan: a finding that cannot be explained
// remotely gets a local explanation instead.
type Explainer interface {
	Explain(ctx context.Context, summary model.Summary, findings []model.ScoredFinding) []model.ExplainedFinding
}

// Local generates explanations without any network dependency.
// It is the Explainer used when no explanation service is configured.
type Local struct{}

// Explain implements Explainer with deterministic local explanations.
func (Local) Explain(_ context.Context, _ model.Summary, findings []model.ScoredFinding) []model.ExplainedFinding {
	out := make([]model.ExplainedFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, explained(f, genericExplanation(f)))
	}
	return out
}

// Client asks a remote explanation service to explain findings.
//
// Design decision: the service response is held to a strict schema. An
// earlier revision tried to salvage near-miss responses by guessing at
// alternative key names, which silently accepted garbage; now any
// response that does not match the schema exactly is discarded and the
// affected findings get local explanations. The error mode is visible in
// the log instead of hidden in the output.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sets the bearer token sent to the explanation service.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout bounds one explanation request.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client for the given explanation service URL.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// requestFinding is the per-finding payload sent to the service.
type requestFinding struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Severity    string   `json:"severity"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// explainRequest is the service request body.
type explainRequest struct {
	Summary  model.Summary    `json:"summary"`
	Findings []requestFinding `json:"findings"`
}

// explainResponse is the expected service response body. Findings are
// positional: entry i explains request finding i.
type explainResponse struct {
	Findings []model.Explanation `json:"findings"`
}

// maxResponseBody bounds how much of a service response is read.
const maxResponseBody = 1 << 20

// Explain implements Explainer against the remote service. Remote
// failures degrade per-finding to local explanations and are logged,
// never returned.
func (c *Client) Explain(ctx context.Context, summary model.Summary, findings []model.ScoredFinding) []model.ExplainedFinding {
	if len(findings) == 0 {
		return nil
	}

	remote, err := c.fetch(ctx, summary, findings)
	if err != nil {
		c.logger.Warn("explanation service unavailable, using local explanations",
			"error", err,
			"findings", len(findings),
		)
	}

	out := make([]model.ExplainedFinding, 0, len(findings))
	backfilled := 0
	for i, f := range findings {
		expl, ok := pick(remote, i)
		if !ok {
			expl = genericExplanation(f)
			backfilled++
		}
		out = append(out, explained(f, expl))
	}

	if err == nil && backfilled > 0 {
		c.logger.Warn("explanation service returned a short or partial response",
			"backfilled", backfilled,
			"findings", len(findings),
		)
	}
	return out
}

// fetch performs one request against the service and decodes the strict
// response schema.
func (c *Client) fetch(ctx context.Context, summary model.Summary, findings []model.ScoredFinding) ([]model.Explanation, error) {
	payload := explainRequest{Summary: summary}
	for _, f := range findings {
		payload.Findings = append(payload.Findings, requestFinding{
			ID:          f.TemplateID,
			Name:        f.Name,
			Severity:    f.Severity.String(),
			URL:         f.MatchedAt,
			Description: f.Description,
			Tags:        f.Tags,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode explanation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build explanation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explanation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explanation service returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read explanation response: %w", err)
	}

	var decoded explainResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("malformed explanation response: %w", err)
	}
	return decoded.Findings, nil
}

// pick returns the i-th remote explanation if it exists and is complete.
// Partial entries (any empty field) are rejected rather than padded.
func pick(remote []model.Explanation, i int) (model.Explanation, bool) {
	if i >= len(remote) {
		return model.Explanation{}, false
	}
	e := remote[i]
	if e.WhatIsWrong == "" || e.WhyItMatters == "" || e.HowToFix == "" {
		return model.Explanation{}, false
	}
	return e, true
}

// explained assembles the report entry for one finding.
func explained(f model.ScoredFinding, e model.Explanation) model.ExplainedFinding {
	return model.ExplainedFinding{
		ID:          f.TemplateID,
		Name:        f.Name,
		Severity:    f.Severity,
		URL:         f.MatchedAt,
		Score:       f.Score,
		Explanation: e,
	}
}

// severityImpact phrases why a severity level matters.
var severityImpact = map[model.Severity]string{
	model.SeverityCritical: "it is directly exploitable and can lead to full compromise of the application or its data",
	model.SeverityHigh:     "it exposes sensitive functionality or data to attackers with little effort",
	model.SeverityMedium:   "it weakens the application's defenses and can be chained with other issues",
	model.SeverityLow:      "it gives attackers useful information or a minor foothold",
	model.SeverityInfo:     "it reveals details about the application that are better kept private",
}

// genericExplanation builds a deterministic explanation from the finding
// itself. Equal findings always produce equal text.
func genericExplanation(f model.ScoredFinding) model.Explanation {
	location := f.MatchedAt
	if location == "" {
		location = "the scanned target"
	}

	what := fmt.Sprintf("%s was detected at %s.", f.Name, location)
	if f.Description != "" {
		what = fmt.Sprintf("%s was detected at %s. %s", f.Name, location, f.Description)
	}

	impact, ok := severityImpact[f.Severity]
	if !ok {
		impact = severityImpact[model.SeverityInfo]
	}

	return model.Explanation{
		WhatIsWrong:  what,
		WhyItMatters: fmt.Sprintf("This issue is rated %s: %s.", f.Severity, impact),
		HowToFix:     fmt.Sprintf("Review the affected endpoint and apply the remediation guidance for %s, then rescan to confirm the finding no longer appears.", f.TemplateID),
	}
}
