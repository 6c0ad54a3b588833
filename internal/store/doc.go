// Package store persists discovered items, tracked sources, and durable
// app state in SQLite, and exposes the status transitions the pipelines
// drive items through.
//
// The items table is the single source of truth for what work remains:
// queue contents are rebuilt from it at startup, so queue entries themselves
// are never persisted. Each item carries two independent lifecycles,
// retrieval and relay, and the relay lifecycle may only leave pending once
// retrieval has completed with a recorded local path. Schema changes bump
// the version in schema.go; users clear the database to adopt a new schema.
package store
