package parser

import (
	"encoding/json"
)

// endpointRecord is the discovery tool's JSONL record shape. Depending on
// version the endpoint URL sits nested under a request object or in a
// flat url field.
type endpointRecord struct {
	Request struct {
		Endpoint string `json:"endpoint"`
	} `json:"request"`
	URL string `json:"url"`
}

// ParseEndpoints consumes the discovery tool's line stream and returns
// the de-duplicated endpoint URLs in first-seen order. Lines that are not
// valid records are skipped and counted, never fatal.
//
// Design decision: First-seen order rather than a sorted set keeps the
// output deterministic for a given crawl while preserving the tool's own
// traversal order, which tends to surface the most central endpoints first.
func (p *Parser) ParseEndpoints(lines <-chan string) ([]string, int) {
	var endpoints []string
	seen := make(map[string]bool)
	skipped := 0

	for line := range lines {
		var rec endpointRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}

		url := rec.Request.Endpoint
		if url == "" {
			url = rec.URL
		}
		if url == "" {
			skipped++
			continue
		}
		if seen[url] {
			continue
		}
		seen[url] = true
		endpoints = append(endpoints, url)
	}

	if skipped > 0 {
		p.logger.Debug("skipped unparseable endpoint lines", "count", skipped)
	}
	return endpoints, skipped
}
