// Package port holds the backend port itself and everything needed to read
// one out of text.
//
// State is the single lock-guarded cell that records the discovered port.
// It starts at 0 ("not yet resolved") and is written at most once, either by
// the dev override or by the sidecar announcement scanner.
//
// ParsePort and ParseAnnouncement implement the two accepted text forms: a
// bare 16-bit number (the PAGENODE_BACKEND_PORT override) and a
// "PORT=<digits>" line on the sidecar's stdout.
//
// Probe checks OS-level port availability via net.Listen and is used by dev
// tooling to pick a port for the override.
package port
