// Package metrics derives delivery quality measurements from the raw
// packet exchange.
//
// Ownership boundary:
// - per-sequence send/ack/loss records
// - latency, jitter, and loss summarization
// - the metrics CSV surface consumed by downstream tooling
package metrics
