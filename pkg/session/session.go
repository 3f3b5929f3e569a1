// Package session models the in-memory realm/room/player state machine: a
// Session is one hosted realm, owning its players and a ProximityIndex per
// room; the Manager is the registry of live sessions; the UserRegistry is
// the separate authenticated-principal map. See the package-level types for
// the exact invariants each one upholds.
package session

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"realmhub/pkg/proximity"
)

// MaxCoordinate bounds player positions to a finite, sane range (spec §4.3).
const MaxCoordinate = 10000

var (
	// ErrBadRoom is returned when a caller names a room index the realm
	// does not have.
	ErrBadRoom = errors.New("session: invalid room index")

	// ErrPlayerNotFound is returned when an operation names a userId not
	// currently in the session.
	ErrPlayerNotFound = errors.New("session: player not found")

	// ErrOutOfRange is returned when a position falls outside
	// [-MaxCoordinate, +MaxCoordinate] or is non-finite.
	ErrOutOfRange = errors.New("session: position out of range")
)

// Session is the runtime instance of one hosted realm: its fixed realm
// snapshot, its current players, and one ProximityIndex per room. All
// session state lives under a single mutex; a caller never needs, and must
// never hold, more than one Session's lock at a time.
type Session struct {
	mu        sync.Mutex
	Realm     RealmSnapshot
	radius    float64
	players   map[string]*Player
	proximity map[int]*proximity.Index
}

// NewSession creates an empty session hosting the given realm snapshot. It
// is not registered anywhere; callers use Manager.GetOrCreate for that.
func NewSession(realm RealmSnapshot, proximityRadius float64) *Session {
	return &Session{
		Realm:     realm,
		radius:    proximityRadius,
		players:   make(map[string]*Player),
		proximity: make(map[int]*proximity.Index),
	}
}

func (s *Session) proximityIndexLocked(roomIndex int) *proximity.Index {
	idx, ok := s.proximity[roomIndex]
	if !ok {
		idx = proximity.New(s.radius)
		s.proximity[roomIndex] = idx
	}
	return idx
}

// AddPlayer creates a new Player at room 0's spawn point and inserts it into
// that room's proximity index. Returns the created player and the set of
// userIds whose proximityId changed (which may include the newcomer).
func (s *Session) AddPlayer(socketID, userID, username, skin string) (Player, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, _ := s.Realm.Map.Room(0)
	p := &Player{
		UserID:      userID,
		Username:    username,
		Skin:        skin,
		SocketID:    socketID,
		RoomIndex:   0,
		X:           room.Spawn.X,
		Y:           room.Spawn.Y,
		ProximityID: proximity.None,
	}
	s.players[userID] = p

	changed := s.proximityIndexLocked(0).Insert(userID, p.X, p.Y)
	s.applyProximityChangesLocked(changed)

	logrus.WithFields(logrus.Fields{
		"function": "AddPlayer",
		"realmId":  s.Realm.RealmID,
		"userId":   userID,
		"socketId": socketID,
	}).Info("player added to session")

	return *p, changed
}

// RemovePlayer deletes userID from the session and its room's proximity
// index. Returns the set of remaining userIds whose proximityId changed.
func (s *Session) RemovePlayer(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[userID]
	if !ok {
		return nil
	}

	delete(s.players, userID)
	changed := s.proximityIndexLocked(p.RoomIndex).Remove(userID)
	s.applyProximityChangesLocked(changed)

	logrus.WithFields(logrus.Fields{
		"function": "RemovePlayer",
		"realmId":  s.Realm.RealmID,
		"userId":   userID,
	}).Info("player removed from session")

	return changed
}

// MovePlayer validates and applies a position update within the player's
// current room, updating that room's proximity index.
func (s *Session) MovePlayer(userID string, x, y float64) ([]string, error) {
	if err := validateCoordinate(x, y); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, userID)
	}

	p.X, p.Y = x, y
	changed := s.proximityIndexLocked(p.RoomIndex).Move(userID, x, y)
	s.applyProximityChangesLocked(changed)

	return changed, nil
}

// ChangeRoom moves a player to a different room at the given position,
// removing it from the old room's proximity index and inserting it into the
// new one. Returns the union of both rooms' change sets.
func (s *Session) ChangeRoom(userID string, roomIndex int, x, y float64) ([]string, error) {
	if err := validateCoordinate(x, y); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Realm.Map.ValidRoomIndex(roomIndex) {
		return nil, fmt.Errorf("%w: %d", ErrBadRoom, roomIndex)
	}

	p, ok := s.players[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, userID)
	}

	oldRoom := p.RoomIndex
	changedOld := s.proximityIndexLocked(oldRoom).Remove(userID)

	p.RoomIndex = roomIndex
	p.X, p.Y = x, y
	changedNew := s.proximityIndexLocked(roomIndex).Insert(userID, x, y)

	merged := mergeChangeSets(changedOld, changedNew)
	s.applyProximityChangesLocked(merged)

	logrus.WithFields(logrus.Fields{
		"function":  "ChangeRoom",
		"realmId":   s.Realm.RealmID,
		"userId":    userID,
		"fromRoom":  oldRoom,
		"toRoom":    roomIndex,
	}).Debug("player changed room")

	return merged, nil
}

// SetSkin updates a player's skin string.
func (s *Session) SetSkin(userID, skin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[userID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotFound, userID)
	}
	p.Skin = skin
	return nil
}

// Player returns a copy of the named player, if present.
func (s *Session) Player(userID string) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[userID]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// PlayersInRoom enumerates players whose roomIndex matches.
func (s *Session) PlayersInRoom(roomIndex int) []Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Player
	for _, p := range s.players {
		if p.RoomIndex == roomIndex {
			out = append(out, *p)
		}
	}
	return out
}

// SocketsInRoom projects PlayersInRoom to socket ids.
func (s *Session) SocketsInRoom(roomIndex int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, p := range s.players {
		if p.RoomIndex == roomIndex {
			out = append(out, p.SocketID)
		}
	}
	return out
}

// AllPlayers returns a copy of every player currently in the session,
// regardless of room. Used by eviction and kick paths that must reach every
// socket in the session.
func (s *Session) AllPlayers() []Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	return out
}

// PlayerCount reports how many players the session currently holds.
func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// applyProximityChangesLocked writes the newly-computed proximityId back
// onto each changed player. Called with s.mu held.
func (s *Session) applyProximityChangesLocked(changedUserIDs []string) {
	for _, userID := range changedUserIDs {
		p, ok := s.players[userID]
		if !ok {
			continue
		}
		p.ProximityID = s.proximity[p.RoomIndex].GroupOf(userID)
	}
}

func validateCoordinate(x, y float64) error {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return fmt.Errorf("%w: non-finite coordinate", ErrOutOfRange)
	}
	if x < -MaxCoordinate || x > MaxCoordinate || y < -MaxCoordinate || y > MaxCoordinate {
		return fmt.Errorf("%w: (%v, %v)", ErrOutOfRange, x, y)
	}
	return nil
}

func mergeChangeSets(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make([]string, 0, len(a)+len(b))
	for _, id := range a {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged
}
