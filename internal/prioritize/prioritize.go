package prioritize

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/snl-sec/snlscan/internal/model"
)

// DefaultMaxIssues caps the prioritized set when no override is given.
const DefaultMaxIssues = 10

// impactWeight maps severity to its impact factor.
// Unknown severities parse to SeverityInfo and get the lowest weight.
var impactWeight = map[model.Severity]float64{
	model.SeverityCritical: 10,
	model.SeverityHigh:     8,
	model.SeverityMedium:   5,
	model.SeverityLow:      2,
	model.SeverityInfo:     1,
}

// defaultEase is used when none of the finding's tags appear in the
// ease-of-fix table.
const defaultEase = 5

// easeEntry pairs a finding tag with its ease-of-fix weight.
type easeEntry struct {
	tag  string
	ease float64
}

// easeOfFix estimates remediation effort from a finding's tags; higher is
// easier. Header and policy issues are configuration changes, XSS and
// CSRF need code changes, and SQL injection often needs query or
// architecture rework.
//
// The table is an ordered slice rather than a map: the first table entry
// present in the finding's tag set wins, regardless of tag order within
// the finding. Map iteration would make scoring nondeterministic.
var easeOfFix = []easeEntry{
	{"header", 10},
	{"csp", 9},
	{"hsts", 9},
	{"tls", 8},
	{"ssl", 8},
	{"ratelimit", 7},
	{"redirect", 6},
	{"xss", 4},
	{"csrf", 4},
	{"sqli", 2},
}

// Score computes the priority score for one finding:
//
//	impactWeight(severity) * easeOfFix(tags) * confidence(kind)
//
// It is a pure function of (severity, tags, kind); equal inputs always
// yield equal scores.
func Score(f model.Finding) float64 {
	impact, ok := impactWeight[f.Severity]
	if !ok {
		impact = impactWeight[model.SeverityInfo]
	}

	ease := float64(defaultEase)
	for _, entry := range easeOfFix {
		if f.HasTag(entry.tag) {
			ease = entry.ease
			break
		}
	}

	// Findings whose kind is a concrete protocol matched observed
	// behavior; passive "info" classifications are weaker signals.
	confidence := 0.8
	if f.Kind == "info" {
		confidence = 0.5
	}

	return impact * ease * confidence
}

// Engine deduplicates, scores, ranks, and caps raw findings.
type Engine struct {
	// maxIssues caps the prioritized set.
	maxIssues int

	// artifactPath, when set, is where the capped list is persisted for
	// audit and debugging. Write failures are logged, never propagated.
	artifactPath string

	// logger for structured logging.
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxIssues overrides the prioritized-set cap.
func WithMaxIssues(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIssues = n
		}
	}
}

// WithArtifactPath enables persisting the capped list to the given path.
func WithArtifactPath(path string) Option {
	return func(e *Engine) {
		e.artifactPath = path
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates a new Engine with the given options.
func New(opts ...Option) *Engine {
	e := &Engine{maxIssues: DefaultMaxIssues}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Prioritize converts raw findings into the ranked, capped set.
//
// Guarantees, for all inputs:
//   - output length <= the configured cap
//   - output is never empty when raw input is non-empty (fallback law)
//   - deduplication key (template id, matched URL) is unique in the output
//   - ties keep their relative input order (stable sort)
func (e *Engine) Prioritize(raw []model.Finding) []model.ScoredFinding {
	if len(raw) == 0 {
		e.logger.Info("no raw findings to prioritize")
		return nil
	}

	prioritized := e.rank(raw)

	// Fallback law: if dedup+scoring somehow reduced non-empty input to
	// nothing, return the first raw findings instead of hiding them.
	if len(prioritized) == 0 {
		e.logger.Warn("prioritization produced no entries from non-empty input, falling back to raw findings",
			"raw_count", len(raw),
		)
		prioritized = e.fallback(raw)
	}

	e.persist(prioritized)

	e.logger.Info("prioritization complete",
		"selected", len(prioritized),
		"raw_count", len(raw),
	)
	return prioritized
}

// rank performs dedup, scoring, stable descending sort, and truncation.
func (e *Engine) rank(raw []model.Finding) []model.ScoredFinding {
	seen := make(map[string]bool, len(raw))
	scored := make([]model.ScoredFinding, 0, len(raw))
	for _, f := range raw {
		key := f.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		scored = append(scored, model.ScoredFinding{Finding: f, Score: Score(f)})
	}

	// Stable: equal scores retain first-seen order so repeated runs over
	// the same input produce the same ranking.
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > e.maxIssues {
		scored = scored[:e.maxIssues]
	}
	return scored
}

// fallback wraps the first raw findings, undeduplicated and in input
// order, up to the cap.
func (e *Engine) fallback(raw []model.Finding) []model.ScoredFinding {
	n := min(len(raw), e.maxIssues)
	out := make([]model.ScoredFinding, 0, n)
	for _, f := range raw[:n] {
		out = append(out, model.ScoredFinding{Finding: f, Score: Score(f)})
	}
	return out
}

// persist writes the capped list to the artifact path for audit.
// Failure is logged and swallowed: an unwritable audit file must not
// fail a scan that already has its results in memory.
func (e *Engine) persist(findings []model.ScoredFinding) {
	if e.artifactPath == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(e.artifactPath), 0750); err != nil {
		e.logger.Warn("failed to create artifact directory", "error", err)
		return
	}

	data, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		e.logger.Warn("failed to encode prioritized findings", "error", err)
		return
	}
	if err := os.WriteFile(e.artifactPath, data, 0600); err != nil {
		e.logger.Warn("failed to persist prioritized findings",
			"path", e.artifactPath,
			"error", err,
		)
	}
}
