package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/snl-sec/snlscan/internal/config"
	"github.com/snl-sec/snlscan/internal/database"
	"github.com/snl-sec/snlscan/internal/model"
)

// NewJobsCmd creates the jobs command.
// This command inspects scan history stored in the local database.
func NewJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs [scan-id]",
		Short: "Inspect recorded scan jobs and their findings",
		Long: `Jobs lists scan jobs recorded in the local database and shows the
stored findings of individual scans.

Every scan run through 'snlscan scan' or submitted to 'snlscan serve' is
recorded here, so past results remain queryable after the process exits.

Examples:
  # List all recorded scan jobs
  snlscan jobs

  # Show one job with its stored findings
  snlscan jobs 9f2c1e60-6f3a-4a55-bb1f-0c6dd9f6a001

  # Show only high severity findings of a job
  snlscan jobs --severity high 9f2c1e60-6f3a-4a55-bb1f-0c6dd9f6a001

  # Compare the two most recent completed scans of a target
  snlscan jobs --diff https://shop.example.com

  # Output in JSON format
  snlscan jobs --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runJobsCmd,
	}

	cmd.Flags().StringP("severity", "s", "",
		"Filter findings by severity (info, low, medium, high, critical)")
	cmd.Flags().StringP("diff", "d", "",
		"Compare the two most recent completed scans of the given target")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("data-dir", "",
		"Job database directory (default: XDG data directory)")

	return cmd
}

// runJobsCmd executes the jobs command.
func runJobsCmd(cmd *cobra.Command, args []string) error {
	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return err
	}
	if dataDir == "" {
		dataDir = config.XDGDataDir()
	}

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	diffTarget, err := cmd.Flags().GetString("diff")
	if err != nil {
		return err
	}

	severity, err := cmd.Flags().GetString("severity")
	if err != nil {
		return err
	}

	// History queries never create the database; a missing one just means
	// nothing has been scanned yet
	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	store, err := database.Open(dataDir, opts)
	if err != nil {
		return fmt.Errorf("no scan history found in %s (run 'snlscan scan' first): %w", dataDir, err)
	}
	defer store.Close()

	ctx := cmd.Context()

	if diffTarget != "" {
		return diffScans(ctx, cmd, store, diffTarget, asJSON)
	}
	if len(args) == 1 {
		return showJob(ctx, cmd, store, args[0], severity, asJSON)
	}
	return listJobs(ctx, cmd, store, asJSON)
}

// listJobs prints all recorded jobs, newest first.
func listJobs(ctx context.Context, cmd *cobra.Command, store *database.JobStore, asJSON bool) error {
	jobs, err := store.ListJobs(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if asJSON {
		return writeJSONOutput(cmd, jobs)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No recorded scan jobs.")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-36s  %-9s  %-5s  %-20s  %s\n", "SCAN ID", "STATUS", "MODE", "SUBMITTED", "TARGET")
	for _, job := range jobs {
		fmt.Fprintf(out, "%-36s  %-9s  %-5s  %-20s  %s\n",
			job.ScanID,
			job.Status,
			job.Mode,
			job.SubmittedAt.Local().Format("2006-01-02 15:04:05"),
			job.Target,
		)
	}
	fmt.Fprintf(out, "\n%d job(s)\n", len(jobs))

	return nil
}

// jobDetail is the JSON layout for a single job with its stored findings.
type jobDetail struct {
	Job      *model.ScanJob           `json:"job"`
	Findings []database.FindingRecord `json:"findings"`
}

// showJob prints one job with its stored findings.
func showJob(ctx context.Context, cmd *cobra.Command, store *database.JobStore, scanID, severity string, asJSON bool) error {
	job, err := store.GetJob(ctx, scanID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("scan %s not found", scanID)
	}

	findings, err := store.QueryFindings(ctx, scanID, strings.ToLower(severity))
	if err != nil {
		return fmt.Errorf("failed to query findings: %w", err)
	}

	if asJSON {
		return writeJSONOutput(cmd, jobDetail{Job: job, Findings: findings})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scan:      %s\n", job.ScanID)
	fmt.Fprintf(out, "Target:    %s\n", job.Target)
	fmt.Fprintf(out, "Mode:      %s\n", job.Mode)
	fmt.Fprintf(out, "Status:    %s\n", job.Status)
	fmt.Fprintf(out, "Submitted: %s\n", job.SubmittedAt.Local().Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "Finished:  %s\n", job.CompletedAt.Local().Format(time.RFC3339))
	}
	if job.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", job.Error)
	}

	if len(findings) == 0 {
		fmt.Fprintln(out, "\nNo stored findings.")
		return nil
	}

	fmt.Fprintf(out, "\nStored findings (%d):\n", len(findings))
	for _, f := range findings {
		fmt.Fprintf(out, "  [%s] %s (score %.1f)\n", strings.ToUpper(f.Severity), f.Name, f.Score)
		if f.URL != "" {
			fmt.Fprintf(out, "      %s\n", f.URL)
		}
	}

	return nil
}

// scanDiff is the comparison between two scans of the same target.
type scanDiff struct {
	Target     string                   `json:"target"`
	PrevScanID string                   `json:"previous_scan_id"`
	CurrScanID string                   `json:"current_scan_id"`
	Added      []database.FindingRecord `json:"added"`
	Resolved   []database.FindingRecord `json:"resolved"`
}

// diffScans compares the stored findings of the two most recent completed
// scans of the target.
func diffScans(ctx context.Context, cmd *cobra.Command, store *database.JobStore, target string, asJSON bool) error {
	jobs, err := store.ListJobs(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	// ListJobs returns newest first; keep the two most recent completed
	// scans of this target.
	var completed []*model.ScanJob
	for _, job := range jobs {
		if job.Target == target && job.Status == model.StatusCompleted {
			completed = append(completed, job)
			if len(completed) == 2 {
				break
			}
		}
	}
	if len(completed) < 2 {
		return fmt.Errorf("need at least two completed scans of %s to compare, have %d", target, len(completed))
	}

	curr, prev := completed[0], completed[1]

	currFindings, err := store.QueryFindings(ctx, curr.ScanID, "")
	if err != nil {
		return fmt.Errorf("failed to query findings: %w", err)
	}
	prevFindings, err := store.QueryFindings(ctx, prev.ScanID, "")
	if err != nil {
		return fmt.Errorf("failed to query findings: %w", err)
	}

	diff := scanDiff{
		Target:     target,
		PrevScanID: prev.ScanID,
		CurrScanID: curr.ScanID,
		Added:      subtractFindings(currFindings, prevFindings),
		Resolved:   subtractFindings(prevFindings, currFindings),
	}

	if asJSON {
		return writeJSONOutput(cmd, diff)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Comparing scans of %s\n", target)
	fmt.Fprintf(out, "  previous: %s (%s)\n", prev.ScanID, prev.SubmittedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "  current:  %s (%s)\n\n", curr.ScanID, curr.SubmittedAt.Local().Format("2006-01-02 15:04:05"))

	printDiffSection(out, "New findings", diff.Added)
	printDiffSection(out, "Resolved findings", diff.Resolved)

	if len(diff.Added) == 0 && len(diff.Resolved) == 0 {
		fmt.Fprintln(out, "No changes between scans.")
	}

	return nil
}

// printDiffSection prints one side of a scan comparison.
func printDiffSection(out io.Writer, title string, findings []database.FindingRecord) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(out, "%s (%d):\n", title, len(findings))
	for _, f := range findings {
		fmt.Fprintf(out, "  [%s] %s\n", strings.ToUpper(f.Severity), f.Name)
		if f.URL != "" {
			fmt.Fprintf(out, "      %s\n", f.URL)
		}
	}
	fmt.Fprintln(out)
}

// subtractFindings returns the findings in a that have no counterpart in b.
// Findings are matched by template identifier and URL.
func subtractFindings(a, b []database.FindingRecord) []database.FindingRecord {
	seen := make(map[string]struct{}, len(b))
	for _, f := range b {
		seen[f.FindingID+"|"+f.URL] = struct{}{}
	}

	var only []database.FindingRecord
	for _, f := range a {
		if _, ok := seen[f.FindingID+"|"+f.URL]; !ok {
			only = append(only, f)
		}
	}
	return only
}

// writeJSONOutput writes v as indented JSON to the command's stdout.
func writeJSONOutput(cmd *cobra.Command, v any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
