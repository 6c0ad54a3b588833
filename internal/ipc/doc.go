// Package ipc exposes daemon control over JSON-RPC on a Unix domain socket.
// The trawler CLI is the only intended client; the socket lives next to the
// database and is removed on shutdown.
package ipc
