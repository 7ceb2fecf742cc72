// Package output renders analysis results deterministically: the same graph
// always encodes to the same bytes, so outputs can be diffed, cached by
// content, and compared across runs without false positives.
//
// # Ordering contract
//
//   - nodes: keyed by path; the encoder emits map keys sorted
//   - edges: dependency before semantic, then source ASC, target ASC
//   - ranked files: score DESC, path ASC (produced by the ranker)
//   - warnings: high, medium, low, then branch and file ASC (produced by
//     the conflict detector)
//   - similar files: similarity DESC, path ASC (produced by the store)
//   - snapshots: newest first (produced by the history log)
//
// # Encoding rules
//
// Marshal and MarshalIndent emit JSON with object keys sorted
// alphabetically, floats rounded to at most 6 decimal places, timestamps
// as RFC 3339 UTC, and nil or omitempty-zero fields dropped. Non-nil
// empty slices stay as [] so array-valued keys never disappear from the
// shape.
//
// # Comparing runs
//
// StripVolatile removes timestamp fields wherever they appear, and
// Equivalent compares two encoded results modulo those fields. Two
// analyses of an unchanged tree are Equivalent even though their
// timestamps differ.
package output
