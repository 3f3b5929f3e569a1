package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"realmhub/pkg/identity"
	"realmhub/pkg/integration"
	"realmhub/pkg/realmmap"
	"realmhub/pkg/realmstore"
	"realmhub/pkg/session"
	"realmhub/pkg/validation"
)

// newSocketID mints a fresh opaque socket identifier for a newly upgraded
// connection.
func newSocketID() string {
	return uuid.New().String()
}

// Error codes carried in the outbound `error` event (spec §6/§7).
const (
	codeAuthError    = "AUTH_ERROR"
	codeRateLimited  = "RATE_LIMITED"
	codeValidation   = "VALIDATION_ERROR"
	codePermission   = "PERMISSION_ERROR"
	codeNotFound     = "NOT_FOUND"
	codeConflict     = "CONFLICT"
	codeInternal     = "INTERNAL_ERROR"
	codeOwnerKicked  = "OWNER_KICKED"
	codeRealmDeleted = "REALM_DELETED"
	codeRealmUpdated = "REALM_UPDATED"
	codeServerReboot = "SERVER_RESTART"
)

// Dispatcher is shared by every client connection of a Server and turns
// inbound (event, payload) envelopes into session mutations and
// broadcasts. Grounded on the teacher's pkg/server/websocket.go message
// loop and handleMethod dispatch table, generalized from JSON-RPC game
// methods to the realm/session event protocol described by spec §4.6.
type Dispatcher struct {
	identity    identity.Provider
	realms      realmstore.Store
	sessions    *session.Manager
	registry    *session.UserRegistry
	rateLimiter *EventRateLimiter
	metrics     *Metrics
	proximity   float64

	connsMu sync.Mutex
	conns   map[string]*wsConnection // socketID -> connection

	joinMu    sync.Mutex
	joinFlags map[string]bool // userID -> join in progress
}

// NewDispatcher builds a Dispatcher over the given collaborators.
func NewDispatcher(idp identity.Provider, realms realmstore.Store, proximityRadius float64, rateLimiter *EventRateLimiter, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		identity:    idp,
		realms:      realms,
		sessions:    session.NewManager(),
		registry:    session.NewUserRegistry(),
		rateLimiter: rateLimiter,
		metrics:     metrics,
		proximity:   proximityRadius,
		conns:       make(map[string]*wsConnection),
		joinFlags:   make(map[string]bool),
	}
}

// Sessions returns the dispatcher's session manager, for the Server's
// health checks and metrics gauges.
func (d *Dispatcher) Sessions() *session.Manager {
	return d.sessions
}

// Authenticate verifies the handshake token/uid pair through the resilient
// identity executor (spec §4.6 item 1).
func (d *Dispatcher) Authenticate(ctx context.Context, token, claimedUserID string) (identity.User, bool) {
	if token == "" || claimedUserID == "" {
		return identity.User{}, false
	}

	var user identity.User
	var ok bool
	err := integration.ExecuteIdentityOperation(ctx, func(ctx context.Context) error {
		u, verified, verr := d.identity.VerifyToken(ctx, token, claimedUserID)
		if verr != nil {
			return verr
		}
		user, ok = u, verified
		return nil
	})
	if err != nil {
		logrus.WithError(err).Warn("identity provider call failed")
		return identity.User{}, false
	}
	return user, ok
}

// registerConn associates a socketID with its live connection for targeted
// and room broadcasts.
func (d *Dispatcher) registerConn(socketID string, conn *wsConnection) {
	d.connsMu.Lock()
	d.conns[socketID] = conn
	d.connsMu.Unlock()
}

func (d *Dispatcher) unregisterConn(socketID string) {
	d.connsMu.Lock()
	delete(d.conns, socketID)
	d.connsMu.Unlock()
}

func (d *Dispatcher) connFor(socketID string) (*wsConnection, bool) {
	d.connsMu.Lock()
	defer d.connsMu.Unlock()
	c, ok := d.conns[socketID]
	return c, ok
}

// Dispatch handles one inbound envelope from an authenticated connection.
// username is the display name the identity principal carried at handshake
// time (spec §3 "username, derived from the identity principal").
func (d *Dispatcher) Dispatch(ctx context.Context, userID, username, socketID string, conn *wsConnection, ev envelope) {
	if d.rateLimiter != nil && !d.rateLimiter.Allow(userID, ev.Event) {
		d.sendError(conn, ev.Event, codeRateLimited, "rate limit exceeded")
		if d.metrics != nil {
			d.metrics.RecordRejectedEvent(ev.Event, "rate_limited")
		}
		return
	}

	switch ev.Event {
	case "joinRealm":
		d.handleJoinRealm(ctx, userID, username, socketID, conn, ev.Payload)
	case "movePlayer":
		d.handleMovePlayer(userID, ev.Payload)
	case "teleport":
		d.handleTeleport(userID, ev.Payload)
	case "changedSkin":
		d.handleChangedSkin(userID, ev.Payload)
	case "sendMessage":
		d.handleSendMessage(userID, ev.Payload)
	case "kickPlayer":
		d.handleKickPlayer(userID, ev.Payload)
	default:
		if d.metrics != nil {
			d.metrics.RecordRejectedEvent(ev.Event, "unknown_event")
		}
	}

	if d.metrics != nil {
		d.metrics.RecordInboundEvent(ev.Event)
	}
}

// handleJoinRealm implements the join protocol (spec §4.6 "Join protocol").
func (d *Dispatcher) handleJoinRealm(ctx context.Context, userID, username, socketID string, conn *wsConnection, raw json.RawMessage) {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		d.sendJoinFailed(conn, "Malformed request.")
		return
	}

	payload, err := validation.ValidateJoinRealm(body)
	if err != nil {
		d.sendJoinFailed(conn, "Malformed request.")
		return
	}

	d.joinMu.Lock()
	if d.joinFlags[userID] {
		d.joinMu.Unlock()
		d.sendJoinFailed(conn, "Already joining a space.")
		return
	}
	d.joinFlags[userID] = true
	d.joinMu.Unlock()
	defer func() {
		d.joinMu.Lock()
		delete(d.joinFlags, userID)
		d.joinMu.Unlock()
	}()

	realmRecord, err := d.loadRealmResilient(ctx, payload.RealmID)
	if err != nil {
		d.sendJoinFailed(conn, "Space not found")
		return
	}

	profile, err := d.loadProfileResilient(ctx, userID)
	if err != nil {
		d.sendJoinFailed(conn, "Failed to get profile")
		return
	}

	if reason, ok := authorizeJoin(userID, payload.ShareID, realmRecord); !ok {
		d.sendJoinFailed(conn, reason)
		return
	}

	realmMap, err := realmmap.Parse(realmRecord.MapData)
	if err != nil {
		d.sendJoinFailed(conn, "Space not found")
		return
	}

	if existing, ok := d.sessions.SessionOf(userID); ok {
		_ = existing
		if oldSocketID, _, kicked := d.sessions.KickPlayer(userID); kicked {
			d.terminateSocket(oldSocketID, codeOwnerKicked, "You have logged in from another location.")
		}
	}

	snapshot := session.RealmSnapshot{RealmID: payload.RealmID, OwnerID: realmRecord.OwnerID, ShareID: realmRecord.ShareID, Map: realmMap}
	sess := d.sessions.GetOrCreate(payload.RealmID, snapshot, d.proximity)

	existingInRoom := sess.PlayersInRoom(0)

	newPlayer, changed := sess.AddPlayer(socketID, userID, username, profile.Skin)
	d.sessions.Join(payload.RealmID, sess, socketID, userID)
	d.registry.Add(session.Principal{UserID: userID, Username: username})
	d.registerConn(socketID, conn)

	_ = conn.send("joinedRoom", map[string]interface{}{
		"realm":     payload.RealmID,
		"player":    newPlayer,
		"roomIndex": newPlayer.RoomIndex,
	})

	for _, p := range existingInRoom {
		_ = conn.send("playerJoinedRoom", p)
	}

	d.broadcastToRoom(sess, newPlayer.RoomIndex, socketID, "playerJoinedRoom", newPlayer)
	d.applyProximityChanges(sess, changed)

	if d.metrics != nil {
		d.metrics.UpdateActiveSessions(d.sessions.SessionCount())
	}
}

// authorizeJoin implements spec §4.6 join-protocol step 4.
func authorizeJoin(userID, shareID string, realm realmstore.Realm) (string, bool) {
	if userID == realm.OwnerID {
		return "", true
	}
	if realm.ShareID == "" {
		return "", true
	}
	if shareID == "" {
		return "This realm requires a share link.", false
	}
	if shareID != realm.ShareID {
		return "The share link has been changed.", false
	}
	return "", true
}

func (d *Dispatcher) loadRealmResilient(ctx context.Context, realmID string) (realmstore.Realm, error) {
	var record realmstore.Realm
	err := integration.ExecuteRealmStoreOperation(ctx, func(ctx context.Context) error {
		r, err := d.realms.LoadRealm(ctx, realmID)
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	return record, err
}

func (d *Dispatcher) loadProfileResilient(ctx context.Context, userID string) (realmstore.Profile, error) {
	var record realmstore.Profile
	err := integration.ExecuteRealmStoreOperation(ctx, func(ctx context.Context) error {
		p, err := d.realms.LoadProfile(ctx, userID)
		if err != nil {
			return err
		}
		record = p
		return nil
	})
	return record, err
}

func (d *Dispatcher) handleMovePlayer(userID string, raw json.RawMessage) {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return
	}
	payload, err := validation.ValidateMovePlayer(body)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordRejectedEvent("movePlayer", "validation")
		}
		return
	}

	sess, ok := d.sessions.SessionOf(userID)
	if !ok {
		return
	}

	changed, err := sess.MovePlayer(userID, payload.X, payload.Y)
	if err != nil {
		return
	}

	player, _ := sess.Player(userID)
	if socketID, _, ok := socketFor(sess, userID); ok {
		d.broadcastToRoom(sess, player.RoomIndex, socketID, "playerMoved", map[string]interface{}{
			"uid": userID, "x": player.X, "y": player.Y,
		})
	}
	d.applyProximityChanges(sess, changed)
}

func (d *Dispatcher) handleTeleport(userID string, raw json.RawMessage) {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return
	}
	payload, err := validation.ValidateTeleport(body)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordRejectedEvent("teleport", "validation")
		}
		return
	}

	sess, ok := d.sessions.SessionOf(userID)
	if !ok {
		return
	}

	oldPlayer, _ := sess.Player(userID)
	changed, err := sess.ChangeRoom(userID, payload.RoomIndex, payload.X, payload.Y)
	if err != nil {
		return
	}

	newPlayer, _ := sess.Player(userID)
	if socketID, ok := d.connsSocketFor(sess, userID); ok {
		d.broadcastToRoom(sess, oldPlayer.RoomIndex, socketID, "playerTeleported", map[string]interface{}{
			"uid": userID, "x": newPlayer.X, "y": newPlayer.Y, "roomIndex": newPlayer.RoomIndex,
		})
		if newPlayer.RoomIndex != oldPlayer.RoomIndex {
			d.broadcastToRoom(sess, newPlayer.RoomIndex, socketID, "playerTeleported", map[string]interface{}{
				"uid": userID, "x": newPlayer.X, "y": newPlayer.Y, "roomIndex": newPlayer.RoomIndex,
			})
		}
	}
	d.applyProximityChanges(sess, changed)
}

func (d *Dispatcher) handleChangedSkin(userID string, raw json.RawMessage) {
	var skin string
	if err := json.Unmarshal(raw, &skin); err != nil {
		return
	}
	payload, err := validation.ValidateChangedSkin(skin)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordRejectedEvent("changedSkin", "validation")
		}
		return
	}

	sess, ok := d.sessions.SessionOf(userID)
	if !ok {
		return
	}
	if err := sess.SetSkin(userID, payload.Skin); err != nil {
		return
	}

	player, _ := sess.Player(userID)
	if socketID, ok := d.connsSocketFor(sess, userID); ok {
		d.broadcastToRoom(sess, player.RoomIndex, socketID, "playerChangedSkin", map[string]interface{}{
			"uid": userID, "skin": payload.Skin,
		})
	}
}

func (d *Dispatcher) handleSendMessage(userID string, raw json.RawMessage) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return
	}
	payload, err := validation.ValidateSendMessage(text)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordRejectedEvent("sendMessage", "validation")
		}
		return
	}

	sess, ok := d.sessions.SessionOf(userID)
	if !ok {
		return
	}
	player, ok := sess.Player(userID)
	if !ok {
		return
	}
	if socketID, ok := d.connsSocketFor(sess, userID); ok {
		d.broadcastToRoom(sess, player.RoomIndex, socketID, "receiveMessage", map[string]interface{}{
			"uid": userID, "message": payload.Message,
		})
	}
}

func (d *Dispatcher) handleKickPlayer(issuerUserID string, raw json.RawMessage) {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return
	}
	payload, err := validation.ValidateKickPlayer(body)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordRejectedEvent("kickPlayer", "validation")
		}
		return
	}

	issuerSession, ok := d.sessions.SessionOf(issuerUserID)
	if !ok || issuerSession.Realm.OwnerID != issuerUserID {
		if d.metrics != nil {
			d.metrics.RecordRejectedEvent("kickPlayer", "permission")
		}
		return
	}

	targetSession, ok := d.sessions.SessionOf(payload.UID)
	if !ok || (targetSession.Realm.RealmID != issuerSession.Realm.RealmID && targetSession.Realm.OwnerID != issuerUserID) {
		if d.metrics != nil {
			d.metrics.RecordRejectedEvent("kickPlayer", "permission")
		}
		return
	}

	socketID, _, ok := d.sessions.KickPlayer(payload.UID)
	if !ok {
		return
	}
	d.terminateSocket(socketID, codeOwnerKicked, "Kicked by the realm owner.")
}

// Disconnect handles socket teardown: session logout, room broadcast of
// playerLeftRoom, and registry cleanup (spec §4.6 "Disconnect").
func (d *Dispatcher) Disconnect(socketID string) {
	d.unregisterConn(socketID)

	removed, userID, roomIndex, sess, changed := d.sessions.LogOutBySocketId(socketID)
	if !removed {
		return
	}

	d.registry.Remove(userID)
	if sess != nil {
		d.broadcastToRoom(sess, roomIndex, "", "playerLeftRoom", userID)
		d.applyProximityChanges(sess, changed)
	}
	if d.metrics != nil {
		d.metrics.UpdateActiveSessions(d.sessions.SessionCount())
	}
}

// EvictRealm implements the "Realm-mutation eviction notifier" supplemented
// feature: forcibly terminates every session member with sessionTerminated
// and destroys the session.
func (d *Dispatcher) EvictRealm(realmID, code, reason string) {
	players, ok := d.sessions.EvictRealm(realmID)
	if !ok {
		return
	}
	for _, p := range players {
		d.terminateSocket(p.SocketID, code, reason)
	}
}

// NotifyRealmChanged implements realmstore.Notifier: a change to a realm's
// persisted record evicts its live session with REALM_UPDATED.
func (d *Dispatcher) NotifyRealmChanged(realmID string) {
	d.EvictRealm(realmID, codeRealmUpdated, "The realm was updated.")
}

// Shutdown broadcasts a terminal sessionTerminated(SERVER_RESTART) to every
// connection that has joined a realm (sockets are registered on join) before
// the caller closes listeners.
func (d *Dispatcher) Shutdown() {
	d.connsMu.Lock()
	sockets := make([]string, 0, len(d.conns))
	for socketID := range d.conns {
		sockets = append(sockets, socketID)
	}
	d.connsMu.Unlock()

	for _, socketID := range sockets {
		d.terminateSocket(socketID, codeServerReboot, "Server is restarting.")
	}
}

func (d *Dispatcher) terminateSocket(socketID, code, reason string) {
	conn, ok := d.connFor(socketID)
	if !ok {
		return
	}
	_ = conn.send("sessionTerminated", map[string]interface{}{"code": code, "reason": reason})
	conn.close()
}

func (d *Dispatcher) sendJoinFailed(conn *wsConnection, reason string) {
	_ = conn.send("joinFailed", reason)
}

func (d *Dispatcher) sendError(conn *wsConnection, event, code, message string) {
	_ = conn.send("error", map[string]interface{}{"event": event, "code": code, "message": message})
}

// broadcastToRoom sends event/payload to every socket in roomIndex except
// excludeSocketID, using a snapshot of socket ids captured under the
// session's own lock (spec §5 "broadcasts read a snapshot of recipient
// socket ids captured under the lock").
func (d *Dispatcher) broadcastToRoom(sess *session.Session, roomIndex int, excludeSocketID, event string, payload interface{}) {
	for _, socketID := range sess.SocketsInRoom(roomIndex) {
		if socketID == excludeSocketID {
			continue
		}
		if conn, ok := d.connFor(socketID); ok {
			_ = conn.send(event, payload)
			if d.metrics != nil {
				d.metrics.RecordOutboundEvent(event)
			}
		}
	}
}

// applyProximityChanges sends proximityUpdate to each player whose group
// changed (spec §4.6 item 3, proximityUpdate targeting rule).
func (d *Dispatcher) applyProximityChanges(sess *session.Session, changedUserIDs []string) {
	for _, userID := range changedUserIDs {
		player, ok := sess.Player(userID)
		if !ok {
			continue
		}
		if conn, ok := d.connFor(player.SocketID); ok {
			_ = conn.send("proximityUpdate", map[string]interface{}{"proximityId": player.ProximityID})
			if d.metrics != nil {
				d.metrics.RecordOutboundEvent("proximityUpdate")
			}
		}
	}
}

func socketFor(sess *session.Session, userID string) (string, session.Player, bool) {
	p, ok := sess.Player(userID)
	if !ok {
		return "", session.Player{}, false
	}
	return p.SocketID, p, true
}

func (d *Dispatcher) connsSocketFor(sess *session.Session, userID string) (string, bool) {
	socketID, _, ok := socketFor(sess, userID)
	return socketID, ok
}
