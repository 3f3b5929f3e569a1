// Package realmmap parses a realm's opaque map data into a structured,
// immutable room layout: spawn points, barrier tiles, and teleport tiles.
// Parsing is a pure function; the result is never mutated by callers.
package realmmap

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrBadRealm is returned when mapData is malformed or describes zero rooms.
// A session is never created from a realm that fails to parse.
var ErrBadRealm = errors.New("realmmap: malformed or empty realm map data")

// Point is an integer tile coordinate within a room.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Teleport maps a tile in the current room to a destination room and
// floating-point position.
type Teleport struct {
	From        Point   `json:"from"`
	ToRoomIndex int     `json:"toRoomIndex"`
	ToX         float64 `json:"toX"`
	ToY         float64 `json:"toY"`
}

// Room is one subdivision of a realm: a spawn point plus the set of tiles
// that block movement and the set of tiles that teleport a player elsewhere.
type Room struct {
	Spawn     PointF
	Barriers  map[Point]struct{}
	Teleports []Teleport
}

// PointF is a floating-point world position, the unit players move in.
type PointF struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RealmMap is the parsed, immutable room layout of a realm.
type RealmMap struct {
	Rooms []Room
}

// RoomCount returns the number of rooms in the realm.
func (m *RealmMap) RoomCount() int {
	return len(m.Rooms)
}

// ValidRoomIndex reports whether roomIndex names an existing room.
func (m *RealmMap) ValidRoomIndex(roomIndex int) bool {
	return roomIndex >= 0 && roomIndex < len(m.Rooms)
}

// Room returns the room at roomIndex, or false if it does not exist.
func (m *RealmMap) Room(roomIndex int) (Room, bool) {
	if !m.ValidRoomIndex(roomIndex) {
		return Room{}, false
	}
	return m.Rooms[roomIndex], true
}

// IsBarrier reports whether the integer tile (x,y) in roomIndex blocks movement.
func (m *RealmMap) IsBarrier(roomIndex, x, y int) bool {
	room, ok := m.Room(roomIndex)
	if !ok {
		return false
	}
	_, blocked := room.Barriers[Point{X: x, Y: y}]
	return blocked
}

// TeleportAt returns the teleport defined at the integer tile (x,y) in
// roomIndex, if any.
func (m *RealmMap) TeleportAt(roomIndex, x, y int) (Teleport, bool) {
	room, ok := m.Room(roomIndex)
	if !ok {
		return Teleport{}, false
	}
	for _, t := range room.Teleports {
		if t.From.X == x && t.From.Y == y {
			return t, true
		}
	}
	return Teleport{}, false
}

// wireRoom is the on-the-wire shape of one room inside mapData.
type wireRoom struct {
	Spawn     PointF     `json:"spawn"`
	Barriers  []Point    `json:"barriers"`
	Teleports []Teleport `json:"teleports"`
}

// wireMap is the on-the-wire shape of a realm's mapData blob.
type wireMap struct {
	Rooms []wireRoom `json:"rooms"`
}

// Parse transforms a realm's opaque mapData JSON into a RealmMap. It fails
// with ErrBadRealm if the data does not parse or describes zero rooms.
func Parse(mapData []byte) (*RealmMap, error) {
	logrus.WithField("function", "Parse").Debug("parsing realm map data")

	var wire wireMap
	if err := json.Unmarshal(mapData, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRealm, err)
	}

	if len(wire.Rooms) == 0 {
		return nil, fmt.Errorf("%w: realm has zero rooms", ErrBadRealm)
	}

	rooms := make([]Room, len(wire.Rooms))
	for i, wr := range wire.Rooms {
		if err := validateTeleports(wr.Teleports, len(wire.Rooms)); err != nil {
			return nil, fmt.Errorf("%w: room %d: %v", ErrBadRealm, i, err)
		}

		barriers := make(map[Point]struct{}, len(wr.Barriers))
		for _, b := range wr.Barriers {
			barriers[b] = struct{}{}
		}

		rooms[i] = Room{
			Spawn:     wr.Spawn,
			Barriers:  barriers,
			Teleports: append([]Teleport(nil), wr.Teleports...),
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Parse",
		"roomCount": len(rooms),
	}).Debug("realm map parsed")

	return &RealmMap{Rooms: rooms}, nil
}

// validateTeleports rejects teleports that target a room outside the realm;
// such a map is malformed.
func validateTeleports(teleports []Teleport, roomCount int) error {
	for _, t := range teleports {
		if t.ToRoomIndex < 0 || t.ToRoomIndex >= roomCount {
			return fmt.Errorf("teleport targets invalid room index %d", t.ToRoomIndex)
		}
	}
	return nil
}
