package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"github.com/snl-sec/snlscan/internal/model"
)

// MarkdownWriter outputs scan results in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the scan result in Markdown format.
func (w *MarkdownWriter) Write(result *model.ScanResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, &result.Summary)
	w.writeSeveritySummary(md, result.Findings)
	w.writeFindings(md, result.Findings)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with scan statistics.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.Summary) {
	md.H1("Scan Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target", "`" + summary.Target + "`"},
			{"Endpoints Discovered", strconv.Itoa(summary.TotalEndpoints)},
			{"Endpoints With Parameters", strconv.Itoa(summary.ParamsFound)},
			{"Raw Findings", strconv.Itoa(summary.RawFindingsCount)},
			{"Top Issues", strconv.Itoa(summary.TopIssuesCount)},
			{"Templates Loaded", strconv.Itoa(summary.TemplatesLoaded)},
			{"Requests Sent", strconv.Itoa(summary.RequestsSent)},
			{"Duration", fmt.Sprintf("%.1fs", summary.DurationSeconds)},
		},
	})
	md.PlainText("")
}

// writeSeveritySummary writes the per-severity count table.
func (w *MarkdownWriter) writeSeveritySummary(md *markdown.Markdown, findings []model.ExplainedFinding) {
	md.H2("Severity Summary")
	md.PlainText("")

	counts := make(map[model.Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}

	md.Table(markdown.TableSet{
		Header: []string{"Severity", "Count"},
		Rows: [][]string{
			{"Critical", strconv.Itoa(counts[model.SeverityCritical])},
			{"High", strconv.Itoa(counts[model.SeverityHigh])},
			{"Medium", strconv.Itoa(counts[model.SeverityMedium])},
			{"Low", strconv.Itoa(counts[model.SeverityLow])},
			{"Info", strconv.Itoa(counts[model.SeverityInfo])},
		},
	})
	md.PlainText("")

	w.writeAlert(md, counts)
}

// writeAlert writes a severity-appropriate callout.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, counts map[model.Severity]int) {
	switch {
	case counts[model.SeverityCritical] > 0:
		md.Cautionf(
			"Critical security issues detected! %d critical finding(s) require immediate attention.",
			counts[model.SeverityCritical],
		)
	case counts[model.SeverityHigh] > 0:
		md.Warningf(
			"High severity issues detected. %d high severity finding(s) should be addressed.",
			counts[model.SeverityHigh],
		)
	case counts[model.SeverityMedium] > 0:
		md.Importantf(
			"Medium severity issues found. %d finding(s) weaken the target's defenses.",
			counts[model.SeverityMedium],
		)
	case len(counts) > 0:
		md.Note("Only low severity and informational findings detected.")
	default:
		md.Tip("No significant security issues detected.")
	}
	md.PlainText("")
}

// writeFindings writes one section per prioritized finding with its
// explanation.
func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, findings []model.ExplainedFinding) {
	md.H2("Top Issues")
	md.PlainText("")

	if len(findings) == 0 {
		md.PlainText("No issues found.")
		md.PlainText("")
		return
	}

	for i, f := range findings {
		md.PlainText(fmt.Sprintf("### %d. %s [%s]", i+1, f.Name, strings.ToUpper(f.Severity.String())))
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"Property", "Value"},
			Rows: [][]string{
				{"ID", "`" + f.ID + "`"},
				{"URL", f.URL},
				{"Score", fmt.Sprintf("%.1f", f.Score)},
			},
		})
		md.PlainText("")
		md.PlainTextf("**What is wrong:** %s", f.Explanation.WhatIsWrong)
		md.PlainText("")
		md.PlainTextf("**Why it matters:** %s", f.Explanation.WhyItMatters)
		md.PlainText("")
		md.PlainTextf("**How to fix:** %s", f.Explanation.HowToFix)
		md.PlainText("")
	}
}
