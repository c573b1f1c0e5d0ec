// Package ipc provides the control channel between the xtap CLI and the
// daemon: JSON-RPC over a Unix domain socket.
package ipc
