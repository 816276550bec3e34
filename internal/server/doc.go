// Package server implements the transport layer of the Yunj Archive relay:
// WebSocket upgrades, per-connection read/write pumps, the hub that tracks
// room broadcast groups, the HTTP export and health endpoints, and the
// embedded chat page.
//
// The implementation is organized into specialized files for configuration,
// origin policy, hub management, clients, and HTTP handlers. Chat semantics
// live in the chat package; this package only moves bytes.
package server
