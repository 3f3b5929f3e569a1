// Package session owns the coordination server's in-memory state: Session
// (one hosted realm's players and per-room proximity indexes), Manager (the
// registry of live sessions with realm- and user-keyed lookups), and
// UserRegistry (authenticated principals, independent of session
// membership). See each type's doc comment for its concurrency contract.
package session
