// Package cli provides the interactive Arctic Chat command-line client.
//
// It wires configuration, the local age identity, the gRPC client and a
// read-eval-print loop. A background watcher pings the server and flips the
// prompt between online and offline. "listen" streams the current chat in
// the background until it is toggled off.
package cli
