package model

import "strings"

// Finding is one normalized issue reported by the detection tool,
// pre-deduplication. It is produced by the output parser and treated as
// immutable afterwards: the prioritization engine copies findings into
// ScoredFinding rather than annotating them in place.
type Finding struct {
	// TemplateID identifies the detection rule that produced this finding.
	TemplateID string `json:"template_id"`

	// Kind is the protocol or finding class reported by the tool
	// (e.g. "http", "ssl", "dns"). The scoring engine uses it as a
	// confidence proxy: non-informational kinds match concrete behavior
	// and are more reliable than passive "info" classifications.
	Kind string `json:"kind"`

	// Name is the human-readable title of the finding, when the tool
	// provided one.
	Name string `json:"name,omitempty"`

	// Description explains the finding in the tool's own words.
	Description string `json:"description,omitempty"`

	// Severity is the tool-reported risk level.
	Severity Severity `json:"severity"`

	// Tags are the detection rule's category tags (e.g. "header", "xss").
	// Order is preserved as reported; the ease-of-fix table does not
	// depend on it.
	Tags []string `json:"tags,omitempty"`

	// MatchedAt is the URL where the issue was observed.
	MatchedAt string `json:"matched_at"`

	// Raw preserves the original record for audit purposes. For findings
	// recovered from free-text output this holds the original line under
	// the "full_line" key.
	Raw map[string]any `json:"raw,omitempty"`
}

// HasTag reports whether the finding carries the given tag.
// Comparison is case-insensitive because tool template authors are not
// consistent about casing.
func (f Finding) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// DedupKey returns the deduplication key for the finding: the template id
// combined with the matched URL. When the tool did not report a matched
// URL the host recorded in the raw payload is used, and "unknown" as a
// last resort, so that URL-less findings still deduplicate per template.
func (f Finding) DedupKey() string {
	location := f.MatchedAt
	if location == "" {
		if host, ok := f.Raw["host"].(string); ok && host != "" {
			location = host
		} else {
			location = "unknown"
		}
	}
	return f.TemplateID + "-" + location
}

// ScoredFinding is a Finding with its prioritization score attached.
// The score is derived, never persisted independently of its finding.
type ScoredFinding struct {
	Finding

	// Score is impact * ease-of-fix * confidence as computed by the
	// prioritization engine. Higher means more worth fixing first.
	Score float64 `json:"score"`
}

// Explanation is developer-facing remediation text for one finding.
// It is produced by the explanation service, or generated locally when
// that service is unavailable.
type Explanation struct {
	WhatIsWrong  string `json:"what_is_wrong"`
	WhyItMatters string `json:"why_it_matters"`
	HowToFix     string `json:"how_to_fix"`
}

// ExplainedFinding is one entry of the final report: a prioritized finding
// reduced to the fields developers need, plus its explanation.
type ExplainedFinding struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Severity    Severity    `json:"severity"`
	URL         string      `json:"url"`
	Score       float64     `json:"score"`
	Explanation Explanation `json:"explanation"`
}

// PipelineStats holds statistics extracted opportunistically from the
// detection tool's diagnostic stream. Both values are best-effort and
// default to zero when the tool did not report them.
type PipelineStats struct {
	// TemplatesLoaded is the number of detection rules the tool loaded.
	TemplatesLoaded int `json:"templates_loaded"`

	// RequestsSent is the number of requests the tool issued.
	RequestsSent int `json:"requests_sent"`
}
