package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/snl-sec/snlscan/internal/model"
)

// State carries the accumulated scan data between stages. Each stage
// reads what earlier stages produced and appends its own output.
type State struct {
	// Target is the URL under assessment.
	Target string

	// Mode is the detection profile for this scan.
	Mode model.ScanMode

	// WorkDir is the per-scan artifact directory: the endpoint list, the
	// raw detection output, and the prioritized findings audit file all
	// live here.
	WorkDir string

	// StartedAt is when the pipeline began executing.
	StartedAt time.Time

	// Endpoints are the deduplicated URLs produced by discovery.
	Endpoints []string

	// EndpointsFile is the on-disk endpoint list handed to detection.
	EndpointsFile string

	// RawFindings are all parsed detection results before prioritization.
	RawFindings []model.Finding

	// SkippedLines counts tool output lines that could not be parsed.
	SkippedLines int

	// Stats are statistics extracted from the detection tool's
	// diagnostic stream.
	Stats model.PipelineStats

	// DetectionDegraded is true when detection hit its hard timeout and
	// the findings are partial.
	DetectionDegraded bool

	// Prioritized is the deduplicated, scored, capped finding set.
	Prioritized []model.ScoredFinding

	// Explained is the final report entry set.
	Explained []model.ExplainedFinding

	// Result is assembled by the finalize stage.
	Result *model.ScanResult
}

// ParamsFound counts discovered endpoints carrying a query string. Those
// are the endpoints with injectable parameters, which is what the
// detection templates exercise hardest.
func (s *State) ParamsFound() int {
	n := 0
	for _, ep := range s.Endpoints {
		if strings.Contains(ep, "?") {
			n++
		}
	}
	return n
}

// Summary aggregates the state into the report summary.
func (s *State) Summary() model.Summary {
	return model.Summary{
		Target:           s.Target,
		TotalEndpoints:   len(s.Endpoints),
		RawFindingsCount: len(s.RawFindings),
		TopIssuesCount:   len(s.Explained),
		ParamsFound:      s.ParamsFound(),
		TemplatesLoaded:  s.Stats.TemplatesLoaded,
		RequestsSent:     s.Stats.RequestsSent,
		DurationSeconds:  time.Since(s.StartedAt).Seconds(),
	}
}

// Stage defines the interface that all pipeline stages must implement.
// Stages are executed in sequence, with each stage receiving the
// accumulated state from previous stages.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows stages to carry configuration state
// 2. It provides a Name() method for logging and debugging
// 3. It's more extensible for future features (e.g., retries, skipping)
type Stage interface {
	// Do executes the pipeline stage.
	// It receives the context for cancellation and the state to extend.
	// Returns an error if the stage fails fatally; degraded outcomes
	// should be recorded in the state and return nil.
	Do(ctx context.Context, state *State) error

	// Name returns the stage's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple stages.
// It maintains a list of stages and executes them in order.
type Pipeline struct {
	// stages contains the ordered list of stages to execute.
	stages []Stage

	// logger is used for structured logging during execution.
	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
// This follows the functional options pattern for clean API design.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, a default logger is created.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a new Pipeline with the given options.
// Stages should be added using AddStages after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		stages: make([]Stage, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStages appends stages to the pipeline.
// Stages are executed in the order they are added.
func (p *Pipeline) AddStages(stages ...Stage) {
	p.stages = append(p.stages, stages...)
}

// Execute runs all pipeline stages in sequence and stops on the first
// failure. A stage failure is always fatal: every stage consumes the
// previous stage's output, so there is nothing useful to run afterwards.
//
// Design decision: We check context.Done() before each stage rather than
// during, because stages bound their own tool invocations with timeouts.
// This allows graceful cleanup between stages while still respecting
// cancellation.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	if state.StartedAt.IsZero() {
		state.StartedAt = time.Now()
	}

	for _, stage := range p.stages {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"stage", stage.Name(),
				"target", state.Target,
				"reason", ctx.Err(),
			)
			return ctx.Err()
		default:
		}

		p.logger.Info("executing stage",
			"stage", stage.Name(),
			"target", state.Target,
		)

		if err := stage.Do(ctx, state); err != nil {
			p.logger.Error("stage failed",
				"stage", stage.Name(),
				"target", state.Target,
				"error", err,
			)
			return err
		}

		p.logger.Debug("stage completed",
			"stage", stage.Name(),
			"target", state.Target,
		)
	}

	return nil
}

// StageCount returns the number of stages in the pipeline.
func (p *Pipeline) StageCount() int {
	return len(p.stages)
}

// StageNames returns the names of all stages in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, stage := range p.stages {
		names[i] = stage.Name()
	}
	return names
}
