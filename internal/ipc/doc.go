// Package ipc serves the Port Query Endpoint to the user-interface layer.
//
// The webview calls it over a loopback HTTP listener. Every request reads
// the shared port.State under its lock and returns immediately; 0 means the
// backend port has not been resolved yet.
package ipc
