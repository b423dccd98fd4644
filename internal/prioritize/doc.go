// Package prioritize turns a large raw finding set into a bounded,
// ranked, actionable set.
//
// The engine deduplicates findings by (template id, matched URL), scores
// each survivor as impact x ease-of-fix x confidence, sorts descending
// with a stable sort, and truncates to a fixed cap. A fallback guard
// guarantees that non-empty raw input never produces an empty result:
// correctness over elegance, a scoring bug must not silently hide every
// finding from the user.
package prioritize
