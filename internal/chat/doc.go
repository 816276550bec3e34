// Package chat implements the server-side room state for the Yunj Archive
// relay: bounded per-room message histories, connection-to-room bindings, and
// the session manager that drives join, message, and disconnect transitions.
//
// The package owns no transport. Delivery goes through the Dispatcher
// interface so the WebSocket hub (and test fakes) can be plugged in.
package chat
