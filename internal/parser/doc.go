// Package parser converts heterogeneous scanning tool output into the
// uniform Finding representation.
//
// External tool output format varies by version and flag combination:
// structured JSON line records, free-text bracketed records, or only a
// persisted output file. The parser's job is to never let a formatting
// drift turn into zero findings when data is actually present:
//   - Each line is tried against the strategies in order, first match wins.
//   - A line that matches no strategy is dropped and counted, never fatal.
//   - When streaming produced nothing but the tool wrote its output file,
//     the file is re-parsed as a last-resort recovery path.
//
// The package also parses the discovery tool's JSONL endpoint records.
package parser
