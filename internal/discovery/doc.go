// Package discovery resolves the backend port exactly once at startup.
//
// Two mutually exclusive paths write the shared port.State:
//
//   - Dev override: PAGENODE_BACKEND_PORT, if it parses as a 16-bit port,
//     is used as is and no sidecar is started. A malformed value is treated
//     as absent.
//   - Sidecar: the backend executable is spawned and a Scanner reads its
//     stdout until a "PORT=<n>" line appears, an error event arrives, or
//     the stream ends.
//
// Bootstrap runs the whole sequence and returns a Task that tracks the
// background scan. An unresolved scan is not fatal; the query endpoint just
// keeps reporting 0.
package discovery
