// Package realmmap turns a realm's map_data blob into the structured room
// layout (spawn points, barrier tiles, teleport tiles) the rest of the
// coordination server needs. Parsing is pure and produces an immutable
// result — nothing here mutates a RealmMap after Parse returns.
package realmmap
