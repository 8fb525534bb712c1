// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Client connection state, connect attempts and failures
//   - Client message and byte rates in both directions
//   - Echo server active connections, negotiated subprotocols and message rates
//   - Journal entries written, dropped and batch flush latency
package metrics
