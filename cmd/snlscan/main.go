// Package main provides the entry point for the snlscan CLI.
//
// snlscan is an automated security assessment pipeline for web applications.
// It discovers the reachable attack surface of a target, runs template-based
// vulnerability detection against it, prioritizes the findings, and explains
// the top issues in developer-facing language.
//
// Usage:
//
//	snlscan scan <url>
//	snlscan serve
//
// See --help for all available options.
package main

// main is the entry point for snlscan.
func main() {
	Execute()
}
