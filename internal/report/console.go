package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/snl-sec/snlscan/internal/model"
)

// severityColors maps each severity to its terminal color.
var severityColors = map[model.Severity]*color.Color{
	model.SeverityCritical: color.New(color.FgRed, color.Bold),
	model.SeverityHigh:     color.New(color.FgRed),
	model.SeverityMedium:   color.New(color.FgYellow),
	model.SeverityLow:      color.New(color.FgCyan),
	model.SeverityInfo:     color.New(color.FgWhite),
}

// ConsoleWriter outputs human-readable text reports for terminal display
// with color-coded severity labels.
//
// Color is handled by fatih/color, which degrades to plain text when the
// output is not a terminal, so piping the report to a file stays clean.
type ConsoleWriter struct {
	baseWriter

	// verbose enables the full explanation text per finding. Without it
	// only the what-is-wrong line is shown.
	verbose bool
}

// ConsoleWriterOption configures a ConsoleWriter.
type ConsoleWriterOption func(*ConsoleWriter)

// WithVerbose enables full explanations in the output.
func WithVerbose(verbose bool) ConsoleWriterOption {
	return func(w *ConsoleWriter) {
		w.verbose = verbose
	}
}

// NewConsoleWriter creates a ConsoleWriter that outputs to the given writer.
func NewConsoleWriter(output io.Writer, opts ...ConsoleWriterOption) *ConsoleWriter {
	w := &ConsoleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the scan result in human-readable format.
func (w *ConsoleWriter) Write(result *model.ScanResult) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, &result.Summary)
	w.writeSummary(&sb, &result.Summary)
	w.writeFindings(&sb, result.Findings)

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the report title block.
func (w *ConsoleWriter) writeHeader(sb *strings.Builder, summary *model.Summary) {
	title := "Scan Report: " + summary.Target
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("=", len(title)) + "\n\n")
}

// writeSummary writes the aggregate statistics block.
func (w *ConsoleWriter) writeSummary(sb *strings.Builder, summary *model.Summary) {
	fmt.Fprintf(sb, "Endpoints discovered: %d (%d with parameters)\n",
		summary.TotalEndpoints, summary.ParamsFound)
	fmt.Fprintf(sb, "Raw findings:         %d\n", summary.RawFindingsCount)
	fmt.Fprintf(sb, "Top issues:           %d\n", summary.TopIssuesCount)
	if summary.TemplatesLoaded > 0 || summary.RequestsSent > 0 {
		fmt.Fprintf(sb, "Templates loaded:     %d\n", summary.TemplatesLoaded)
		fmt.Fprintf(sb, "Requests sent:        %d\n", summary.RequestsSent)
	}
	fmt.Fprintf(sb, "Duration:             %.1fs\n\n", summary.DurationSeconds)
}

// writeFindings writes the prioritized finding list.
func (w *ConsoleWriter) writeFindings(sb *strings.Builder, findings []model.ExplainedFinding) {
	if len(findings) == 0 {
		sb.WriteString("No issues found.\n")
		return
	}

	sb.WriteString("Top Issues\n")
	sb.WriteString("----------\n\n")

	for i, f := range findings {
		fmt.Fprintf(sb, "%2d. %s %s (score %.1f)\n",
			i+1, severityLabel(f.Severity), f.Name, f.Score)
		if f.URL != "" {
			fmt.Fprintf(sb, "    URL: %s\n", f.URL)
		}
		fmt.Fprintf(sb, "    %s\n", f.Explanation.WhatIsWrong)
		if w.verbose {
			fmt.Fprintf(sb, "    Why it matters: %s\n", f.Explanation.WhyItMatters)
			fmt.Fprintf(sb, "    How to fix:     %s\n", f.Explanation.HowToFix)
		}
		sb.WriteString("\n")
	}
}

// severityLabel renders a color-coded, fixed-shape severity tag.
func severityLabel(sev model.Severity) string {
	label := "[" + strings.ToUpper(sev.String()) + "]"
	if c, ok := severityColors[sev]; ok {
		return c.Sprint(label)
	}
	return label
}
