package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/snl-sec/snlscan/internal/model"
)

// Default configuration values.
// These values mirror the behavior of the external tools' own defaults
// where applicable and are chosen to keep scans polite toward targets.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "snlscan"

	// DefaultDiscoveryTool is the discovery tool binary name used when no
	// explicit path is configured. The runner resolves it against the
	// bundled bin directory first, then the search path.
	DefaultDiscoveryTool = "katana"

	// DefaultDetectionTool is the detection tool binary name used when no
	// explicit path is configured.
	DefaultDetectionTool = "nuclei"

	// DefaultCrawlDepth is the discovery crawl recursion depth. Depth 2
	// covers the landing page, its links, and their links, which finds
	// the bulk of an application's reachable surface without the long
	// tail of deep pagination.
	DefaultCrawlDepth = 2

	// DefaultDiscoveryTimeout bounds the discovery tool's wall-clock run.
	// Two minutes is enough for a depth-2 crawl of typical applications.
	DefaultDiscoveryTimeout = 2 * time.Minute

	// DefaultDetectionTimeout bounds the detection tool's wall-clock run.
	// Detection covers many templates per endpoint, so the budget is
	// larger than discovery's. On expiry partial output is kept.
	DefaultDetectionTimeout = 10 * time.Minute

	// DefaultExplainTimeout bounds one request to the explanation service.
	DefaultExplainTimeout = 60 * time.Second

	// DefaultListenAddr is the HTTP API listen address for serve mode.
	DefaultListenAddr = "127.0.0.1:8000"

	// DefaultConcurrency is the number of concurrent pipeline runs when
	// scanning multiple targets from the CLI. The HTTP API intentionally
	// places no bound on concurrent jobs; the CLI bounds batch scans so a
	// long target list does not fork dozens of external processes at once.
	DefaultConcurrency = 3

	// DefaultMaxIssues caps the prioritized finding set. Ten issues is
	// the largest set a developer will realistically act on from one scan.
	DefaultMaxIssues = 10
)

// DefaultBenchmarkHosts are known-vulnerable reference targets used as a
// scanner self-test: a scan of one of these that produces zero findings
// means the detector itself is broken, and the job fails fast.
func DefaultBenchmarkHosts() []string {
	return []string{"testphp.vulnweb.com"}
}

// ModeProfile is a named detection configuration profile.
// The quick/deep split exists because the detection tool's cost is
// dominated by template count and request pacing; the two profiles trade
// coverage for turnaround time.
type ModeProfile struct {
	// RateLimit is the detection tool's requests-per-second budget.
	RateLimit int

	// RequestTimeout is the detection tool's per-request timeout.
	RequestTimeout time.Duration

	// TemplateCategories is the allow-list of template directories,
	// relative to TemplatesRoot. Only these categories are loaded.
	TemplateCategories []string
}

// Profile returns the detection profile for the given mode.
//
// Design decision: Both profiles are defined explicitly rather than
// deriving deep from quick with multipliers. The template allow-lists are
// a safety surface and must be readable at a glance.
func Profile(mode model.ScanMode) ModeProfile {
	switch mode {
	case model.ModeDeep:
		return ModeProfile{
			RateLimit:      150,
			RequestTimeout: 20 * time.Second,
			TemplateCategories: []string{
				"http/misconfiguration",
				"http/exposures",
				"http/technologies",
				"ssl",
				"http/vulnerabilities",
				"dast/vulnerabilities",
			},
		}
	default:
		return ModeProfile{
			RateLimit:      50,
			RequestTimeout: 10 * time.Second,
			TemplateCategories: []string{
				"http/misconfiguration",
				"http/exposures",
				"http/technologies",
				"ssl",
			},
		}
	}
}

// Config holds all configuration options for snlscan.
// This struct is designed to be populated from CLI flags and passed through
// the application via dependency injection rather than global state.
type Config struct {
	// DiscoveryToolPath is the discovery tool binary: an absolute path,
	// or a bare name resolved via the bundled bin directory and then the
	// search path.
	DiscoveryToolPath string

	// DetectionToolPath is the detection tool binary, resolved the same way.
	DetectionToolPath string

	// TemplatesRoot is the root directory of the detection tool's
	// template tree. Category allow-lists are joined onto this path.
	TemplatesRoot string

	// BinDir is the bundled binary directory checked before the search
	// path when resolving bare tool names. Empty disables the check.
	BinDir string

	// ResultsDir is where pipeline artifacts are written: the endpoint
	// list handed to the detection tool, the raw findings file, and the
	// prioritized findings audit file.
	ResultsDir string

	// DataDir is the directory for the job snapshot database.
	DataDir string

	// CrawlDepth is the discovery crawl recursion depth.
	CrawlDepth int

	// DiscoveryTimeout is the discovery tool's hard wall-clock budget.
	DiscoveryTimeout time.Duration

	// DetectionTimeout is the detection tool's hard wall-clock budget.
	DetectionTimeout time.Duration

	// BenchmarkHosts are reference targets subject to the validation gate.
	BenchmarkHosts []string

	// MaxIssues caps the prioritized finding set.
	MaxIssues int

	// ExplainURL is the explanation service endpoint. Empty disables the
	// service; findings then receive locally generated explanations.
	ExplainURL string

	// ExplainAPIKey authenticates requests to the explanation service.
	ExplainAPIKey string

	// ExplainTimeout bounds one explanation request.
	ExplainTimeout time.Duration

	// ListenAddr is the HTTP API listen address for serve mode.
	ListenAddr string

	// AuthSecret is the shared secret for bearer-token verification in
	// serve mode. Empty disables authentication (local use).
	AuthSecret string

	// AuthAudience is the expected token audience claim.
	AuthAudience string

	// Concurrency is the number of concurrent pipeline runs for CLI
	// batch scans.
	Concurrency int

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only info and above are logged.
	Verbose bool

	// JSONReport enables JSON report output instead of the colored
	// console format. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report.
	// When set, the report is written to this file instead of stdout.
	ReportFile string

	// Targets is the list of URLs to scan (CLI mode).
	Targets []string

	// Mode is the detection profile for CLI scans.
	Mode model.ScanMode
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use
// cases; users override specific values via flags or the config file.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (timeouts, directories).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		DiscoveryToolPath: DefaultDiscoveryTool,
		DetectionToolPath: DefaultDetectionTool,
		ResultsDir:        filepath.Join(XDGDataDir(), "results"),
		DataDir:           XDGDataDir(),
		CrawlDepth:        DefaultCrawlDepth,
		DiscoveryTimeout:  DefaultDiscoveryTimeout,
		DetectionTimeout:  DefaultDetectionTimeout,
		BenchmarkHosts:    DefaultBenchmarkHosts(),
		MaxIssues:         DefaultMaxIssues,
		ExplainTimeout:    DefaultExplainTimeout,
		ListenAddr:        DefaultListenAddr,
		Concurrency:       DefaultConcurrency,
		Mode:              model.ModeQuick,
	}
}

// XDGDataDir returns the XDG data directory for snlscan.
// On Linux: ~/.local/share/snlscan
// On macOS: ~/Library/Application Support/snlscan
// On Windows: %LOCALAPPDATA%\snlscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for snlscan.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific sentinel error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any scanning begins.
func (c *Config) Validate() error {
	if c.DiscoveryTimeout <= 0 || c.DetectionTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.CrawlDepth <= 0 {
		return ErrInvalidCrawlDepth
	}
	if c.MaxIssues <= 0 {
		return ErrInvalidMaxIssues
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

// ValidateTargets checks that at least one scan target is configured.
// Separate from Validate because serve mode has no CLI targets.
func (c *Config) ValidateTargets() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	return nil
}
