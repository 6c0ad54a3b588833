// Package daemon ties the store, pipelines, scanner, and watchdog together
// into a single-instance background process and exposes the operations the
// IPC layer calls.
package daemon
