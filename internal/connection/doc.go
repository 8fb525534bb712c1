// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns at most one WebSocket connection at a time
//   - Moves through Disconnected -> Connecting -> Connected -> Disconnected,
//     with Connecting -> Disconnected when the handshake fails
//   - Sends text and binary messages fire-and-forget through a per-connection write queue
//   - Pings the peer and tears down stale connections
//   - Reports OnOpen, OnMessage, OnClose and OnError to an Observer, and a
//     StateEvent per transition on an event bus
//
// There is no reconnection: a dropped connection ends in Disconnected and the
// caller decides what to do next.
package connection
