// Package command defines the wsclient command line using urfave/cli/v2:
//   - the default action, an interactive session over one connection
//   - send, a one-shot connect, send, wait and disconnect
//
// Both load the YAML config, apply flag overrides, and build the same
// client stack: connection manager, optional PostgreSQL journal and
// optional Prometheus endpoint.
package command
