// Package runner invokes external scanning tools as subprocesses.
//
// The runner owns three hard problems:
//   - Locating tool binaries: a bundled bin directory is checked first,
//     then the system search path, without ever mutating the process
//     environment.
//   - Streaming output: standard output is exposed as a single-pass,
//     forward-only line channel so parsing can begin before the process
//     exits.
//   - Hard timeouts: a process that outlives its wall-clock budget is
//     forcibly terminated, and the partial output collected so far is
//     still delivered. A timeout is a degraded result, not a failure;
//     the caller decides whether partial output is acceptable.
//
// The diagnostic stream (stderr) is collected separately and scanned
// opportunistically for tool statistics such as loaded template counts
// and request totals.
package runner
