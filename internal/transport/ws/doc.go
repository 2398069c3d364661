// Package ws is the WebSocket transport adapter for the gateway.
//
// It upgrades HTTP requests to duplex channels, extracts the owner
// identity from the handshake, and drives the gateway's admission,
// inbound event, and closure hooks. Each socket gets a write-serialized
// channel handle, a ping keepalive loop, and a read loop with a pong
// liveness deadline.
package ws
