// Package proximity computes, per room, which players are close enough to
// be considered peers for audio/video pairing. See Index for the
// incremental union-find algorithm.
package proximity
