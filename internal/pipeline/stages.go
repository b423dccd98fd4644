package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/snl-sec/snlscan/internal/config"
	"github.com/snl-sec/snlscan/internal/explain"
	"github.com/snl-sec/snlscan/internal/model"
	"github.com/snl-sec/snlscan/internal/parser"
	"github.com/snl-sec/snlscan/internal/prioritize"
	"github.com/snl-sec/snlscan/internal/runner"
)

// excludedTags are detection template tags that are never run, in any
// mode. Brute-force and denial-of-service templates can damage the
// target; this is a safety boundary, not a tuning knob, so it is a
// constant rather than configuration.
const excludedTags = "bruteforce,dos,network,intrusive"

// allSeverities is the severity filter passed to the detection tool.
const allSeverities = "info,low,medium,high,critical"

// DiscoverStage crawls the target and collects its endpoint surface.
//
// Discovery is the foundation of the scan: every later stage operates on
// the endpoint list it produces. Zero endpoints is a fatal outcome
// because detection would have nothing to probe.
type DiscoverStage struct {
	// runner executes the discovery tool.
	runner *runner.Runner

	// parser decodes the tool's endpoint stream.
	parser *parser.Parser

	// toolPath is the discovery tool binary.
	toolPath string

	// depth is the crawl depth passed to the tool.
	depth int

	// timeout is the hard wall-clock budget for the crawl.
	timeout time.Duration

	// logger for structured logging.
	logger *slog.Logger
}

// NewDiscoverStage creates the discovery stage from the given configuration.
func NewDiscoverStage(r *runner.Runner, p *parser.Parser, cfg *config.Config, logger *slog.Logger) *DiscoverStage {
	return &DiscoverStage{
		runner:   r,
		parser:   p,
		toolPath: cfg.DiscoveryToolPath,
		depth:    cfg.CrawlDepth,
		timeout:  cfg.DiscoveryTimeout,
		logger:   logger,
	}
}

// Name returns the stage name.
func (s *DiscoverStage) Name() string {
	return "discover"
}

// Do executes the discovery stage.
func (s *DiscoverStage) Do(ctx context.Context, state *State) error {
	rawFile := filepath.Join(state.WorkDir, "endpoints.jsonl")

	proc, err := s.runner.Start(ctx, runner.Invocation{
		Path: s.toolPath,
		Args: []string{
			"-u", state.Target,
			"-d", strconv.Itoa(s.depth),
			"-jc",
			"-fx",
			"-silent",
			"-jsonl",
			"-o", rawFile,
		},
		OutputFile: rawFile,
		Timeout:    s.timeout,
	})
	if err != nil {
		return fmt.Errorf("discovery: %w", err)
	}

	endpoints, skipped := s.parser.ParseEndpoints(proc.Lines())
	info := proc.Wait()

	if info.Err != nil && !info.TimedOut {
		return fmt.Errorf("discovery: %w: %s", info.Err, firstLine(info.Diagnostics))
	}
	if info.TimedOut {
		// Partial crawl output is still usable; the scan proceeds with
		// whatever surface was mapped before the budget expired.
		s.logger.Warn("discovery hit its hard timeout, continuing with partial surface",
			"target", state.Target,
			"endpoints", len(endpoints),
		)
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("%w: %s", ErrNoAttackSurface, state.Target)
	}

	state.Endpoints = endpoints
	state.SkippedLines += skipped

	// Detection consumes a plain newline-separated endpoint list.
	listFile := filepath.Join(state.WorkDir, "endpoints.txt")
	if err := os.WriteFile(listFile, []byte(strings.Join(endpoints, "\n")+"\n"), 0600); err != nil {
		return fmt.Errorf("discovery: write endpoint list: %w", err)
	}
	state.EndpointsFile = listFile

	s.logger.Info("discovery complete",
		"target", state.Target,
		"endpoints", len(endpoints),
		"params_found", state.ParamsFound(),
		"skipped_lines", skipped,
	)
	return nil
}

// DetectStage probes the discovered endpoints with the detection tool's
// template library.
type DetectStage struct {
	// runner executes the detection tool.
	runner *runner.Runner

	// parser decodes the tool's finding stream.
	parser *parser.Parser

	// toolPath is the detection tool binary.
	toolPath string

	// templatesRoot prefixes the profile's template categories. Empty
	// passes the categories through unchanged, letting the tool resolve
	// them against its own template directory.
	templatesRoot string

	// profile selects rate limit, per-request timeout, and templates.
	profile config.ModeProfile

	// timeout is the hard wall-clock budget for the whole detection run.
	timeout time.Duration

	// logger for structured logging.
	logger *slog.Logger
}

// NewDetectStage creates the detection stage for the given scan mode.
func NewDetectStage(r *runner.Runner, p *parser.Parser, cfg *config.Config, mode model.ScanMode, logger *slog.Logger) *DetectStage {
	return &DetectStage{
		runner:        r,
		parser:        p,
		toolPath:      cfg.DetectionToolPath,
		templatesRoot: cfg.TemplatesRoot,
		profile:       config.Profile(mode),
		timeout:       cfg.DetectionTimeout,
		logger:        logger,
	}
}

// Name returns the stage name.
func (s *DetectStage) Name() string {
	return "detect"
}

// Do executes the detection stage.
func (s *DetectStage) Do(ctx context.Context, state *State) error {
	outFile := filepath.Join(state.WorkDir, "findings.jsonl")

	args := []string{
		"-l", state.EndpointsFile,
		"-severity", allSeverities,
		"-rl", strconv.Itoa(s.profile.RateLimit),
		"-timeout", strconv.Itoa(int(s.profile.RequestTimeout.Seconds())),
		"-etags", excludedTags,
		"-dast",
		"-silent",
		"-jsonl",
		"-o", outFile,
		"-stats",
		"-stats-interval", "1",
	}
	for _, category := range s.profile.TemplateCategories {
		if s.templatesRoot != "" {
			category = filepath.Join(s.templatesRoot, category)
		}
		args = append(args, "-t", category)
	}

	proc, err := s.runner.Start(ctx, runner.Invocation{
		Path:       s.toolPath,
		Args:       args,
		OutputFile: outFile,
		Timeout:    s.timeout,
	})
	if err != nil {
		return fmt.Errorf("detection: %w", err)
	}

	findings, skipped := s.parser.Parse(proc.Lines())
	info := proc.Wait()

	if info.Err != nil && !info.TimedOut {
		return fmt.Errorf("detection: %w: %s", info.Err, firstLine(info.Diagnostics))
	}

	// Streaming can miss findings when the tool buffers its stdout but
	// flushes the output file on exit. The file wins when it has more.
	if len(findings) == 0 {
		fileFindings, fileSkipped := s.parser.ParseFile(outFile)
		if len(fileFindings) > 0 {
			s.logger.Info("recovered findings from the output file",
				"count", len(fileFindings),
			)
			findings = fileFindings
			skipped = fileSkipped
		}
	}

	state.RawFindings = findings
	state.SkippedLines += skipped
	state.Stats = info.Stats
	state.DetectionDegraded = info.TimedOut

	if info.TimedOut {
		s.logger.Warn("detection hit its hard timeout, findings are partial",
			"target", state.Target,
			"findings", len(findings),
		)
	}

	s.logger.Info("detection complete",
		"target", state.Target,
		"raw_findings", len(findings),
		"templates_loaded", info.Stats.TemplatesLoaded,
		"requests_sent", info.Stats.RequestsSent,
		"degraded", info.TimedOut,
	)
	return nil
}

// PrioritizeStage reduces the raw findings to the ranked top issues.
type PrioritizeStage struct {
	engine *prioritize.Engine
}

// NewPrioritizeStage creates the prioritization stage.
func NewPrioritizeStage(engine *prioritize.Engine) *PrioritizeStage {
	return &PrioritizeStage{engine: engine}
}

// Name returns the stage name.
func (s *PrioritizeStage) Name() string {
	return "prioritize"
}

// Do executes the prioritization stage. Zero raw findings is a valid
// outcome: the target may simply be clean.
func (s *PrioritizeStage) Do(_ context.Context, state *State) error {
	state.Prioritized = s.engine.Prioritize(state.RawFindings)
	return nil
}

// ExplainStage attaches explanations to the prioritized findings.
type ExplainStage struct {
	explainer explain.Explainer
}

// NewExplainStage creates the explanation stage.
func NewExplainStage(explainer explain.Explainer) *ExplainStage {
	return &ExplainStage{explainer: explainer}
}

// Name returns the stage name.
func (s *ExplainStage) Name() string {
	return "explain"
}

// Do executes the explanation stage. The explainer never fails; findings
// it cannot explain remotely receive local explanations.
func (s *ExplainStage) Do(ctx context.Context, state *State) error {
	state.Explained = s.explainer.Explain(ctx, state.Summary(), state.Prioritized)
	return nil
}

// FinalizeStage assembles the scan result from the accumulated state.
type FinalizeStage struct{}

// Name returns the stage name.
func (FinalizeStage) Name() string {
	return "finalize"
}

// Do executes the finalize stage.
func (FinalizeStage) Do(_ context.Context, state *State) error {
	state.Result = &model.ScanResult{
		Summary:  state.Summary(),
		Findings: state.Explained,
	}
	return nil
}

// firstLine extracts a short diagnostic excerpt for error messages.
func firstLine(diagnostics string) string {
	if diagnostics == "" {
		return "no diagnostic output"
	}
	if i := strings.IndexByte(diagnostics, '\n'); i >= 0 {
		return diagnostics[:i]
	}
	return diagnostics
}
