// Package gateway implements the bidirectional command/response gateway.
//
// The gateway:
//   - Tracks every live duplex channel and which owner holds it (Registry)
//   - Classifies inbound messages and dispatches them to handlers (Router)
//   - Issues commands and correlates out-of-band responses back to the
//     original caller, with per-command deadlines (Correlator)
//   - Fans out targeted and broadcast messages with no acknowledgment
//     (Delivery)
//
// All state is process-lifetime and in-memory. A dropped connection fails
// its in-flight commands; reconnection starts fresh.
package gateway
