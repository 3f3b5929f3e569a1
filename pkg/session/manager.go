package session

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager is the registry of live sessions, keyed by realm id, plus the
// reverse indexes needed to resolve a userId or socketId to its session
// without scanning every session (spec §4.4, §9 "reverse indexes are
// lookup tables keyed by identifier, not back-pointers").
type Manager struct {
	mu       sync.RWMutex
	byRealm  map[string]*Session
	byUser   map[string]*Session
	bySocket map[string]string // socketId -> userId
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		byRealm:  make(map[string]*Session),
		byUser:   make(map[string]*Session),
		bySocket: make(map[string]string),
	}
}

// GetOrCreate returns the live session for realmID, creating one from
// realm if none exists yet. If a session already exists, realm is ignored —
// the existing session already owns its own immutable snapshot.
func (m *Manager) GetOrCreate(realmID string, realm RealmSnapshot, proximityRadius float64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.byRealm[realmID]; ok {
		return s
	}

	s := NewSession(realm, proximityRadius)
	m.byRealm[realmID] = s

	logrus.WithFields(logrus.Fields{
		"function": "GetOrCreate",
		"realmId":  realmID,
	}).Info("session created")

	return s
}

// SessionOf returns the session currently hosting userID, if any.
func (m *Manager) SessionOf(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.byUser[userID]
	return s, ok
}

// Join records that userID is now present in session via socketID, updating
// the reverse indexes. Callers must have already added the player to
// session (e.g. via Session.AddPlayer) before calling Join.
func (m *Manager) Join(realmID string, session *Session, socketID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byUser[userID] = session
	m.bySocket[socketID] = userID
}

// LogOutBySocketId locates the player owning socketID, removes it from its
// session, and destroys the session if it is now empty. Returns whether a
// player was found and removed, the userID removed, the room it was removed
// from, the session it was removed from, and the proximity change set
// produced by the removal.
func (m *Manager) LogOutBySocketId(socketID string) (removed bool, userID string, roomIndex int, sess *Session, changed []string) {
	m.mu.Lock()
	userID, ok := m.bySocket[socketID]
	if !ok {
		m.mu.Unlock()
		return false, "", 0, nil, nil
	}
	sess, ok = m.byUser[userID]
	m.mu.Unlock()
	if !ok {
		return false, "", 0, nil, nil
	}

	p, found := sess.Player(userID)
	if found {
		roomIndex = p.RoomIndex
	}

	changed = sess.RemovePlayer(userID)

	m.mu.Lock()
	delete(m.bySocket, socketID)
	delete(m.byUser, userID)
	m.destroyIfEmptyLocked(sess)
	m.mu.Unlock()

	return true, userID, roomIndex, sess, changed
}

// KickPlayer forcibly removes userID from its current session, if any.
// Returns the player's last known socketID (for the caller to send a
// terminal kicked message and close the connection) and whether a player
// was actually removed.
func (m *Manager) KickPlayer(userID string) (socketID string, removedFrom *Session, ok bool) {
	m.mu.RLock()
	sess, found := m.byUser[userID]
	m.mu.RUnlock()
	if !found {
		return "", nil, false
	}

	p, found := sess.Player(userID)
	if !found {
		return "", nil, false
	}
	socketID = p.SocketID

	sess.RemovePlayer(userID)

	m.mu.Lock()
	delete(m.byUser, userID)
	delete(m.bySocket, socketID)
	m.destroyIfEmptyLocked(sess)
	m.mu.Unlock()

	return socketID, sess, true
}

// EvictRealm forcibly removes every player from realmID's session and
// destroys it, returning the players that were present so the caller can
// notify each one's socket with sessionTerminated before closing it.
func (m *Manager) EvictRealm(realmID string) ([]Player, bool) {
	m.mu.Lock()
	sess, ok := m.byRealm[realmID]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	delete(m.byRealm, realmID)
	m.mu.Unlock()

	players := sess.AllPlayers()

	m.mu.Lock()
	for _, p := range players {
		delete(m.byUser, p.UserID)
		delete(m.bySocket, p.SocketID)
	}
	m.mu.Unlock()

	for _, p := range players {
		sess.RemovePlayer(p.UserID)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "EvictRealm",
		"realmId":     realmID,
		"playerCount": len(players),
	}).Warn("realm session evicted")

	return players, true
}

// destroyIfEmptyLocked removes sess from byRealm if it has no players left.
// Called with m.mu held.
func (m *Manager) destroyIfEmptyLocked(sess *Session) {
	if sess.PlayerCount() > 0 {
		return
	}
	if m.byRealm[sess.Realm.RealmID] == sess {
		delete(m.byRealm, sess.Realm.RealmID)
		logrus.WithFields(logrus.Fields{
			"function": "destroyIfEmptyLocked",
			"realmId":  sess.Realm.RealmID,
		}).Info("empty session destroyed")
	}
}

// SessionCount returns the number of currently hosted sessions (for metrics).
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byRealm)
}
