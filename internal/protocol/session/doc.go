// Package session owns beacon<->probe conversation state and reliability
// primitives.
//
// Ownership boundary:
// - session lifecycle state and the per-peer session store
// - in-flight packet tracking and retry/backoff policy
// - position update payload helpers
package session
