// Package explain attaches developer-facing explanations to prioritized
// findings.
//
// Explanations answer three questions per finding: what is wrong, why it
// matters, and how to fix it. A remote explanation service provides them
// when configured; every finding that the service cannot explain falls
// back to a deterministic, locally generated explanation, so the final
// report never contains an unexplained finding.
package explain
