package parser

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/snl-sec/snlscan/internal/model"
)

// bracketPattern matches the detection tool's free-text output format:
//
//	[template-id] [protocol] [severity] http://target/path...
//
// The pattern is searched rather than anchored because some tool versions
// prefix lines with timestamps.
var bracketPattern = regexp.MustCompile(`\[([^\]]+)\] \[([^\]]+)\] \[([^\]]+)\] (\S+)`)

// Parser converts tool output lines into Findings. The zero value is not
// usable; create instances with New.
type Parser struct {
	logger *slog.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithLogger sets a custom logger for the parser.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Parser) {
		p.logger = logger
	}
}

// New creates a new Parser.
func New(opts ...Option) *Parser {
	p := &Parser{}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Parse consumes a single-pass line stream and returns all findings it
// could extract plus the count of lines that matched no strategy.
// It never fails: malformed lines are skipped and counted, and parsing of
// subsequent lines continues.
func (p *Parser) Parse(lines <-chan string) ([]model.Finding, int) {
	var findings []model.Finding
	skipped := 0

	for line := range lines {
		f, ok := p.parseLine(line)
		if !ok {
			skipped++
			continue
		}
		findings = append(findings, f)
	}

	if skipped > 0 {
		p.logger.Debug("skipped unparseable output lines", "count", skipped)
	}
	return findings, skipped
}

// ParseFile re-runs the line strategies over a persisted output file.
// This is the recovery path for runs where streaming was disrupted but
// the tool still wrote its file. A missing file is not an error; it
// simply yields no findings.
func (p *Parser) ParseFile(path string) ([]model.Finding, int) {
	f, err := os.Open(path) //nolint:gosec // Path is the runner's own output file
	if err != nil {
		return nil, 0
	}
	defer f.Close() //nolint:errcheck // Read-only file

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			lines <- line
		}
	}()

	findings, skipped := p.Parse(lines)
	if len(findings) > 0 {
		p.logger.Info("recovered findings from output file",
			"path", path,
			"count", len(findings),
		)
	}
	return findings, skipped
}

// parseLine tries each strategy in order; first match wins. A line that
// fails the structured decode still gets the bracket strategy: truncated
// JSON can carry a recognizable bracketed tail, and the pattern is
// searched rather than anchored.
func (p *Parser) parseLine(line string) (model.Finding, bool) {
	if f, ok := parseRecord(line); ok {
		return f, true
	}
	return parseBracketLine(line)
}

// toolRecord is the structured JSON record shape emitted by the detection
// tool in line-delimited mode. Field names follow the tool's own output.
type toolRecord struct {
	TemplateID string `json:"template-id"`
	Type       string `json:"type"`
	MatchedAt  string `json:"matched-at"`
	Host       string `json:"host"`
	Info       struct {
		Name        string      `json:"name"`
		Severity    string      `json:"severity"`
		Description string      `json:"description"`
		Tags        flexStrings `json:"tags"`
	} `json:"info"`
}

// flexStrings decodes either a JSON string array or a comma-separated
// string. Older tool versions emit tags as "tag1,tag2".
type flexStrings []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *flexStrings) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}

	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	if joined == "" {
		*s = nil
		return nil
	}
	parts := strings.Split(joined, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	*s = parts
	return nil
}

// parseRecord is strategy 1: decode the line as a structured record.
// Records without a template id are rejected; they carry no identity the
// deduplication or scoring stages could work with.
func parseRecord(line string) (model.Finding, bool) {
	var rec toolRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return model.Finding{}, false
	}
	if rec.TemplateID == "" {
		return model.Finding{}, false
	}

	// Preserve the full decoded record for audit.
	var raw map[string]any
	_ = json.Unmarshal([]byte(line), &raw)

	return model.Finding{
		TemplateID:  rec.TemplateID,
		Kind:        rec.Type,
		Name:        rec.Info.Name,
		Description: rec.Info.Description,
		Severity:    model.ParseSeverity(rec.Info.Severity),
		Tags:        rec.Info.Tags,
		MatchedAt:   rec.MatchedAt,
		Raw:         raw,
	}, true
}

// parseBracketLine is strategy 2: extract a finding from the free-text
// bracketed format. Tags are unavailable in this format; the original
// line is kept in the raw payload for audit.
func parseBracketLine(line string) (model.Finding, bool) {
	m := bracketPattern.FindStringSubmatch(line)
	if m == nil {
		return model.Finding{}, false
	}

	return model.Finding{
		TemplateID: m[1],
		Kind:       m[2],
		Severity:   model.ParseSeverity(m[3]),
		MatchedAt:  m[4],
		Raw:        map[string]any{"full_line": line},
	}, true
}
