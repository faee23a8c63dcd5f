// Package probe owns the client endpoint: it establishes a session with a
// beacon, streams sequenced data, and measures delivery quality per packet.
//
// Ownership boundary:
// - the handshake and the transmit half of the reliability rules
// - the flight of unacknowledged packets and their retransmission deadlines
// - per-run metrics collection and the CSV flush
package probe
