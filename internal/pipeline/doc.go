// Package pipeline executes scan stages in sequence.
//
// A scan moves a target through four stages: endpoint discovery, issue
// detection, prioritization, and explanation. Each stage is implemented
// as a Stage that receives the accumulated scan state and can extend it.
//
// Design decision: We use a pipeline pattern instead of direct function
// calls because:
// 1. It allows easy addition/removal of stages without modifying core logic
// 2. It provides consistent error handling and logging across stages
// 3. It supports cancellation via context for long-running scans
//
// The pipeline supports both individual scans and batch processing with
// concurrency control using errgroup. The Orchestrator binds a pipeline
// run to a job's lifecycle.
package pipeline
