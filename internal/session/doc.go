// Package session implements the generic connection-handling engine that
// upper-layer protocols plug into: a pluggable Protocol interface driven by
// a per-connection reader goroutine and a serialized writer goroutine, plus
// a pool of reusable sessions keyed by the context they are bound to.
//
// Grounded on original_source/src/session.hpp and session_pool.hpp.
package session
