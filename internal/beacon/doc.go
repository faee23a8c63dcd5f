// Package beacon owns the server endpoint: it answers probe handshakes,
// acknowledges data, and sweeps idle sessions.
//
// Ownership boundary:
// - inbound message dispatch and reply emission
// - server-side session lifecycle (awaiting_init -> established -> closed)
// - the admin/observability HTTP surface
package beacon
