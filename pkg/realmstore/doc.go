// Package realmstore is grounded on the teacher's generic file-backed
// storage package (atomic writes, flock-based locking) and the pack's
// YAML-fixture patterns, folded directly into this package's FileStore
// rather than kept as a separate persistence layer; it exists because the
// spec names LoadRealm/LoadProfile as external collaborators the
// dispatcher must call through resilience wrappers, without mandating any
// particular backing store.
package realmstore
