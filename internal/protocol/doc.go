// Package protocol owns the driftwire wire contract.
//
// Ownership boundary:
// - fixed-layout datagram header primitives
// - message encode/decode with bounds validation
package protocol
