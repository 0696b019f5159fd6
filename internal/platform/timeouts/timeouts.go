// Package timeouts defines shared timeout constants used across the instance
// lifecycle. Centralizing these values prevents drift between components and
// makes the durations discoverable.
package timeouts

import "time"

// ProbeConnect caps a single database provider probe, including the
// handshake and authentication round trip.
const ProbeConnect = 3 * time.Second

// Migration caps one schema migration run against the configured backend.
const Migration = 2 * time.Minute

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
