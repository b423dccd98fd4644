package model

import "strings"

// Severity represents the risk level of a security finding.
// The levels mirror the detection tool's own severity vocabulary so that
// tool output maps onto them without translation tables.
//
// Design decision: We use iota-based constants rather than string constants
// for efficiency in comparisons and sorting. The String() method provides
// human-readable output when needed.
type Severity int

const (
	// SeverityInfo indicates informational findings with no direct security impact.
	// Examples: technology detection, missing optional headers.
	SeverityInfo Severity = iota

	// SeverityLow indicates minor issues with limited impact.
	// Examples: verbose error pages, weak cache directives.
	SeverityLow

	// SeverityMedium indicates moderate issues that warrant attention.
	// Examples: missing security headers, permissive CORS policies.
	SeverityMedium

	// SeverityHigh indicates serious issues that put the asset at real risk.
	// Examples: exposed admin panels, sensitive file disclosure.
	SeverityHigh

	// SeverityCritical indicates severe issues that are likely exploitable.
	// Examples: SQL injection, remote code execution.
	SeverityCritical
)

// String returns a human-readable representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a severity string from tool output into a Severity.
// Unknown or empty values map to SeverityInfo because the scoring engine
// treats unrecognized severities with the lowest impact weight; an
// unrecognized value must never inflate a finding's rank.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// MarshalText implements encoding.TextMarshaler so severities serialize
// as their lowercase names in JSON and YAML.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	*s = ParseSeverity(string(text))
	return nil
}
