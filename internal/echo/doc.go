// Package echo implements a demo WebSocket server for trying the client.
//
// The server:
//   - Upgrades GET requests on the configured path, picking the subprotocol
//     by server preference among those the client offered
//   - Logs every text and binary message and writes it back when echo is on
//   - Answers pings through the websocket library and logs disconnects
//   - Serves /healthz and, when a registry is given, Prometheus metrics
package echo
