package runner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/snl-sec/snlscan/internal/model"
)

// templatesLoadedPattern matches the detection tool's template-count line,
// e.g. "[INF] Templates loaded for current scan: 7044".
var templatesLoadedPattern = regexp.MustCompile(`(?i)templates loaded[^:]*:\s*(\d+)`)

// statsMarker introduces a generic stats line containing comma-separated
// "key: value" pairs, e.g. "[stats] requests: 1234, templates: 7044".
const statsMarker = "[stats]"

// extractStats scans one diagnostic line for statistics and updates stats
// in place. Extraction is opportunistic: unmatched or malformed lines are
// ignored so a format drift in the tool's diagnostics can never fail a
// scan.
func extractStats(line string, stats *model.PipelineStats) {
	if m := templatesLoadedPattern.FindStringSubmatch(line); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			stats.TemplatesLoaded = n
		}
		return
	}

	idx := strings.Index(line, statsMarker)
	if idx < 0 {
		return
	}

	for _, part := range strings.Split(line[idx+len(statsMarker):], ",") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		switch {
		case strings.Contains(key, "requests"):
			stats.RequestsSent = n
		case strings.Contains(key, "templates"):
			stats.TemplatesLoaded = n
		}
	}
}
