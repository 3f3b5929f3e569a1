package session

import "realmhub/pkg/realmmap"

// Player is one connected participant inside a Session. Session is the sole
// owner of Player values; callers receive copies so a returned Player can
// never be mutated out from under the session's lock.
type Player struct {
	UserID      string
	Username    string
	Skin        string
	SocketID    string
	RoomIndex   int
	X           float64
	Y           float64
	ProximityID string
}

// RealmSnapshot is the realm record a Session is created from: the realm
// store's record plus its parsed map. It is fixed for the lifetime of the
// Session (spec: "Realm snapshot held by session: fixed at session
// creation").
type RealmSnapshot struct {
	RealmID string
	OwnerID string
	ShareID string // "" means the realm is public
	Map     *realmmap.RealmMap
}

// HasShareID reports whether the realm is gated by a share link.
func (s RealmSnapshot) HasShareID() bool {
	return s.ShareID != ""
}
