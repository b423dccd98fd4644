// Package model defines the core data structures used throughout snlscan.
//
// This package contains the following main types:
//   - Finding: One normalized issue reported by the detection tool
//   - ScoredFinding: A Finding with its prioritization score attached
//   - ExplainedFinding: A prioritized finding with developer-facing explanation
//   - ScanJob: One end-to-end pipeline run tracked through a lifecycle
//   - ScanResult / Summary: The final output attached to a completed job
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (parser, prioritize, pipeline, jobs, report)
// need to use these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for API responses and
// database storage.
package model
