package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snl-sec/snlscan/internal/config"
	"github.com/snl-sec/snlscan/internal/database"
	"github.com/snl-sec/snlscan/internal/jobs"
	"github.com/snl-sec/snlscan/internal/log"
	"github.com/snl-sec/snlscan/internal/model"
	"github.com/snl-sec/snlscan/internal/pipeline"
	"github.com/snl-sec/snlscan/internal/report"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [url]",
		Short: "Scan a web application for security issues",
		Long: `Scan runs the full assessment pipeline against one or more targets.

For each target it:
- Discovers the reachable attack surface by crawling the application
- Runs template-based vulnerability detection against every endpoint
- Prioritizes findings by impact, ease of fix, and confidence
- Explains the top issues in developer-facing language

Examples:
  # Quick scan of a single target
  snlscan scan https://shop.example.com

  # Deep scan with the full template set
  snlscan scan --mode deep https://shop.example.com

  # Scan multiple targets concurrently
  snlscan scan site1.example.com site2.example.com site3.example.com

  # Output JSON report to a file
  snlscan scan --json -o report.json https://shop.example.com

  # Use a custom configuration file
  snlscan scan -c myconfig.yaml https://shop.example.com`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	// Scan behavior flags
	cmd.Flags().StringP("mode", "M", string(model.ModeQuick),
		"Detection profile: quick or deep")
	cmd.Flags().IntP("depth", "d", config.DefaultCrawlDepth,
		"Maximum crawl recursion depth for discovery")
	cmd.Flags().Duration("discovery-timeout", config.DefaultDiscoveryTimeout,
		"Wall-clock budget for the discovery phase")
	cmd.Flags().Duration("detection-timeout", config.DefaultDetectionTimeout,
		"Wall-clock budget for the detection phase (partial results kept on expiry)")
	cmd.Flags().IntP("max-issues", "n", config.DefaultMaxIssues,
		"Maximum number of prioritized issues in the report")

	// Batch scanning flags
	cmd.Flags().IntP("batch", "b", config.DefaultConcurrency,
		"Number of concurrent scans")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .snlscan in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	// Build config from file and flags
	cfg, err := buildScanConfig(cmd, args)
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.ValidateTargets(); err != nil {
		return fmt.Errorf("%w (specify one or more target URLs as arguments)", err)
	}

	// Set up structured logging
	logger := log.NewLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runScan(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildScanConfig creates a Config from the config file and cobra flags.
// File values override defaults; explicit flags override file values.
func buildScanConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If the user explicitly specified a config file path, error if not
	// found. Otherwise silently continue with defaults.
	found := config.FindConfigFile(configPath)
	if found != "" {
		cf, err := config.LoadConfigFile(found)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", found, err)
		}
		cfg.Apply(cf)
	} else if configPath != "" {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	mode, err := cmd.Flags().GetString("mode")
	if err != nil {
		return nil, err
	}
	cfg.Mode = model.ParseScanMode(mode)

	if cmd.Flags().Changed("depth") {
		if cfg.CrawlDepth, err = cmd.Flags().GetInt("depth"); err != nil {
			return nil, err
		}
	}

	if cmd.Flags().Changed("discovery-timeout") {
		if cfg.DiscoveryTimeout, err = cmd.Flags().GetDuration("discovery-timeout"); err != nil {
			return nil, err
		}
	}

	if cmd.Flags().Changed("detection-timeout") {
		if cfg.DetectionTimeout, err = cmd.Flags().GetDuration("detection-timeout"); err != nil {
			return nil, err
		}
	}

	if cmd.Flags().Changed("max-issues") {
		if cfg.MaxIssues, err = cmd.Flags().GetInt("max-issues"); err != nil {
			return nil, err
		}
	}

	cfg.Concurrency, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	// Normalize positional arguments into absolute URLs
	cfg.Targets = make([]string, 0, len(args))
	for _, arg := range args {
		target, err := normalizeTarget(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid target %q: %w", arg, err)
		}
		cfg.Targets = append(cfg.Targets, target)
	}

	return cfg, nil
}

// normalizeTarget converts a CLI argument into an absolute http(s) URL.
// Bare hostnames get an https scheme so that "shop.example.com" works the
// way users expect.
func normalizeTarget(raw string) (string, error) {
	target := strings.TrimSpace(raw)
	if target == "" {
		return "", errors.New("empty target")
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}

	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("missing host")
	}
	return u.String(), nil
}

// runScan executes the scan for all configured targets.
func runScan(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting scan",
		"targets", cfg.Targets,
		"mode", cfg.Mode,
		"concurrency", cfg.Concurrency,
	)

	// Open the job database so scans show up in 'snlscan jobs'
	store, err := database.Open(cfg.DataDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open job database: %w", err)
	}
	defer store.Close()
	logger.Info("job database opened", "dir", cfg.DataDir)

	registry := jobs.NewRegistry(
		jobs.WithSnapshotStore(store),
		jobs.WithRegistryLogger(logger),
	)
	orchestrator := pipeline.NewOrchestrator(cfg, registry,
		pipeline.WithOrchestratorLogger(logger),
		pipeline.WithFindingSink(store),
	)

	// Use batch processing for parallel scanning if multiple targets
	if len(cfg.Targets) > 1 && cfg.Concurrency > 1 {
		return runBatchScan(ctx, cfg, orchestrator, logger)
	}

	return runSequentialScan(ctx, cfg, registry, orchestrator, logger)
}

// runSequentialScan scans targets one at a time through the job registry,
// so each scan is recorded with its full lifecycle.
func runSequentialScan(ctx context.Context, cfg *config.Config, registry *jobs.Registry, orchestrator *pipeline.Orchestrator, logger *slog.Logger) error {
	for _, target := range cfg.Targets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job := registry.Create(ctx, target, cfg.Mode, "")

		fmt.Printf("Scanning %s...\n", target)
		startTime := time.Now()

		orchestrator.Run(ctx, job.ScanID)

		job, err := registry.Get(job.ScanID, "")
		if err != nil {
			logger.Error("scan job vanished", "target", target, "error", err)
			continue
		}

		if job.Status != model.StatusCompleted {
			logger.Error("scan failed", "target", target, "cause", job.Error)
			fmt.Fprintf(os.Stderr, "Scan error for %s: %s\n", target, job.Error)
			continue
		}

		elapsed := time.Since(startTime)
		fmt.Printf("Scan completed in %s\n\n", elapsed.Round(time.Millisecond))

		if err := outputReport(cfg, job.Result); err != nil {
			logger.Error("report failed", "target", target, "error", err)
		}
	}

	return nil
}

// runBatchScan scans multiple targets concurrently using BatchProcessor.
func runBatchScan(ctx context.Context, cfg *config.Config, orchestrator *pipeline.Orchestrator, logger *slog.Logger) error {
	fmt.Printf("Starting batch scan of %d targets (concurrency: %d)...\n\n",
		len(cfg.Targets), cfg.Concurrency)

	startTime := time.Now()

	bp := pipeline.NewBatchProcessor(orchestrator,
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithBatchLogger(logger),
	)

	// Process with callback for streaming output
	var mu sync.Mutex
	err := bp.ProcessBatchWithCallback(ctx, cfg.Targets, cfg.Mode, func(result pipeline.BatchResult, index int) {
		mu.Lock()
		defer mu.Unlock()

		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "[%d/%d] Scan error for %s: %v\n",
				index+1, len(cfg.Targets), result.Target, result.Err)
			return
		}

		fmt.Printf("[%d/%d] Scan completed: %s\n", index+1, len(cfg.Targets), result.Target)

		if err := outputReport(cfg, result.Result); err != nil {
			logger.Error("report failed", "target", result.Target, "error", err)
		}
	})

	elapsed := time.Since(startTime)
	fmt.Printf("\nBatch scan completed in %s\n", elapsed.Round(time.Millisecond))

	return err
}

// outputReport writes the scan result in the requested format.
func outputReport(cfg *config.Config, result *model.ScanResult) error {
	// Determine output destination
	var output *os.File
	if cfg.ReportFile != "" {
		// Create directories if they don't exist
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports can reveal unpatched weaknesses in the target, so keep
		// them owner-readable only
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewVersionedJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewConsoleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := writer.Write(result)
	return err
}
