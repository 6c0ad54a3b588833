// Package pipeline coordinates the retrieval and relay worker pools.
//
// Items flow through two phases. Retrieval fetches the media to local disk,
// with short items routed to a dedicated pool so long-form work never starves
// them. Relay copies completed retrievals to remote storage. Each pool drains
// an in-memory FIFO queue; durable state lives in the store, so the queues
// are rebuilt from pending rows at startup.
package pipeline
