package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realmhub/pkg/config"
	"realmhub/pkg/identity"
	"realmhub/pkg/realmstore"
)

// testClaims mirrors the wire shape pkg/identity.JWTProvider expects,
// reproduced here since that package's claims type is unexported.
type testClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// signTestToken signs a token for subject with displayName carried in the
// "name" claim, exactly what identity.JWTProvider.VerifyToken expects.
func signTestToken(t *testing.T, secret, subject, displayName string) string {
	t.Helper()
	c := testClaims{
		Name: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// memRealmStore is an in-memory realmstore.Store for dispatcher tests.
type memRealmStore struct {
	realms   map[string]realmstore.Realm
	profiles map[string]realmstore.Profile
}

func newMemRealmStore() *memRealmStore {
	return &memRealmStore{
		realms:   make(map[string]realmstore.Realm),
		profiles: make(map[string]realmstore.Profile),
	}
}

func (s *memRealmStore) LoadRealm(ctx context.Context, realmID string) (realmstore.Realm, error) {
	r, ok := s.realms[realmID]
	if !ok {
		return realmstore.Realm{}, realmstore.ErrNotFound
	}
	return r, nil
}

func (s *memRealmStore) LoadProfile(ctx context.Context, userID string) (realmstore.Profile, error) {
	p, ok := s.profiles[userID]
	if !ok {
		return realmstore.Profile{}, realmstore.ErrNotFound
	}
	return p, nil
}

const testMapData = `{"rooms": [
	{"spawn": {"x": 0, "y": 0}, "barriers": [], "teleports": []},
	{"spawn": {"x": 0, "y": 0}, "barriers": [], "teleports": []}
]}`

const testSecret = "dispatcher-test-secret"

// testHarness wires a real Server (and its Dispatcher) behind an
// httptest.Server, so tests drive the join/move/teleport/kick protocol over
// an actual WebSocket connection end to end.
type testHarness struct {
	t      *testing.T
	httpSrv *httptest.Server
	wsURL  string
	store  *memRealmStore
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	cfg := &config.Config{
		ProximityRadius:    150,
		MaxConnsPerAddress: 100,
		SessionTimeout:     time.Minute,
		JWTSecret:          testSecret,
		RateLimitEnabled:   false,
		EnableDevMode:      true,
	}

	store := newMemRealmStore()
	idp := identity.NewJWTProvider(testSecret)
	srv := NewServer(cfg, idp, store)

	httpSrv := httptest.NewServer(srv.Mux())
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"

	return &testHarness{t: t, httpSrv: httpSrv, wsURL: wsURL, store: store}
}

func (h *testHarness) close() {
	h.httpSrv.Close()
}

func (h *testHarness) addRealm(realmID, ownerID, shareID string) {
	h.store.realms[realmID] = realmstore.Realm{RealmID: realmID, OwnerID: ownerID, ShareID: shareID, MapData: []byte(testMapData)}
}

func (h *testHarness) addProfile(userID, skin string) {
	h.store.profiles[userID] = realmstore.Profile{UserID: userID, Skin: skin}
}

// connect dials the harness's WebSocket endpoint as userID, authenticated
// with a freshly signed token carrying displayName as the token's "name"
// claim.
func (h *testHarness) connect(userID, displayName string) *websocket.Conn {
	h.t.Helper()
	token := signTestToken(h.t, testSecret, userID, displayName)
	url := h.wsURL + "?token=" + token + "&uid=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(h.t, err)
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(envelope{Event: event, Payload: raw}))
}

func recvEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev envelope
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestDispatcher_SoloJoinPublicRealm(t *testing.T) {
	h := newTestHarness(t)
	defer h.close()

	realmID := uuid.New().String()
	userA := uuid.New().String()
	h.addRealm(realmID, uuid.New().String(), "")
	h.addProfile(userA, "default")

	connA := h.connect(userA, "Alice")
	defer connA.Close()

	sendEnvelope(t, connA, "joinRealm", map[string]interface{}{"realmId": realmID})

	ev := recvEnvelope(t, connA)
	assert.Equal(t, "joinedRoom", ev.Event)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	player, ok := payload["player"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Alice", player["Username"])
	assert.NotEqual(t, userA, player["Username"])
}

func TestDispatcher_SecondPlayerInProximityNotifiesBoth(t *testing.T) {
	h := newTestHarness(t)
	defer h.close()

	realmID := uuid.New().String()
	userA := uuid.New().String()
	userB := uuid.New().String()
	h.addRealm(realmID, uuid.New().String(), "")
	h.addProfile(userA, "default")
	h.addProfile(userB, "default")

	connA := h.connect(userA, "Alice")
	defer connA.Close()
	sendEnvelope(t, connA, "joinRealm", map[string]interface{}{"realmId": realmID})
	require.Equal(t, "joinedRoom", recvEnvelope(t, connA).Event)

	connB := h.connect(userB, "Bob")
	defer connB.Close()
	sendEnvelope(t, connB, "joinRealm", map[string]interface{}{"realmId": realmID})

	// A sees B join, then a proximityUpdate (both spawn at room 0's (0,0)).
	joinedEvent := recvEnvelope(t, connA)
	assert.Equal(t, "playerJoinedRoom", joinedEvent.Event)
	proxA := recvEnvelope(t, connA)
	assert.Equal(t, "proximityUpdate", proxA.Event)

	// B receives joinedRoom, then playerJoinedRoom(A), then its own proximityUpdate.
	require.Equal(t, "joinedRoom", recvEnvelope(t, connB).Event)
	require.Equal(t, "playerJoinedRoom", recvEnvelope(t, connB).Event)
	proxB := recvEnvelope(t, connB)
	assert.Equal(t, "proximityUpdate", proxB.Event)

	var payloadA, payloadB map[string]interface{}
	require.NoError(t, json.Unmarshal(proxA.Payload, &payloadA))
	require.NoError(t, json.Unmarshal(proxB.Payload, &payloadB))
	assert.NotEqual(t, "none", payloadA["proximityId"])
	assert.Equal(t, payloadA["proximityId"], payloadB["proximityId"])
}

func TestDispatcher_DuplicateLoginKicksOldSocket(t *testing.T) {
	h := newTestHarness(t)
	defer h.close()

	realmID := uuid.New().String()
	userA := uuid.New().String()
	h.addRealm(realmID, uuid.New().String(), "")
	h.addProfile(userA, "default")

	conn1 := h.connect(userA, "Alice")
	defer conn1.Close()
	sendEnvelope(t, conn1, "joinRealm", map[string]interface{}{"realmId": realmID})
	require.Equal(t, "joinedRoom", recvEnvelope(t, conn1).Event)

	conn2 := h.connect(userA, "Alice")
	defer conn2.Close()
	sendEnvelope(t, conn2, "joinRealm", map[string]interface{}{"realmId": realmID})

	// conn1 should receive a terminal sessionTerminated before the socket closes.
	kicked := recvEnvelope(t, conn1)
	assert.Equal(t, "sessionTerminated", kicked.Event)

	require.Equal(t, "joinedRoom", recvEnvelope(t, conn2).Event)
}

func TestDispatcher_ShareLinkProtection(t *testing.T) {
	h := newTestHarness(t)
	defer h.close()

	realmID := uuid.New().String()
	ownerID := uuid.New().String()
	shareID := uuid.New().String()
	userA := uuid.New().String()
	h.addRealm(realmID, ownerID, shareID)
	h.addProfile(userA, "default")

	conn := h.connect(userA, "Alice")
	defer conn.Close()

	sendEnvelope(t, conn, "joinRealm", map[string]interface{}{"realmId": realmID})
	ev := recvEnvelope(t, conn)
	assert.Equal(t, "joinFailed", ev.Event)
	var reason string
	require.NoError(t, json.Unmarshal(ev.Payload, &reason))
	assert.Equal(t, "This realm requires a share link.", reason)

	sendEnvelope(t, conn, "joinRealm", map[string]interface{}{"realmId": realmID, "shareId": uuid.New().String()})
	ev = recvEnvelope(t, conn)
	assert.Equal(t, "joinFailed", ev.Event)
	require.NoError(t, json.Unmarshal(ev.Payload, &reason))
	assert.Equal(t, "The share link has been changed.", reason)

	sendEnvelope(t, conn, "joinRealm", map[string]interface{}{"realmId": realmID, "shareId": shareID})
	ev = recvEnvelope(t, conn)
	assert.Equal(t, "joinedRoom", ev.Event)
}

func TestDispatcher_TeleportTargetsOldAndNewRoomOnly(t *testing.T) {
	h := newTestHarness(t)
	defer h.close()

	realmID := uuid.New().String()
	userA := uuid.New().String()
	userB := uuid.New().String()
	h.addRealm(realmID, uuid.New().String(), "")
	h.addProfile(userA, "default")
	h.addProfile(userB, "default")

	connA := h.connect(userA, "Alice")
	defer connA.Close()
	sendEnvelope(t, connA, "joinRealm", map[string]interface{}{"realmId": realmID})
	require.Equal(t, "joinedRoom", recvEnvelope(t, connA).Event)

	connB := h.connect(userB, "Bob")
	defer connB.Close()
	sendEnvelope(t, connB, "joinRealm", map[string]interface{}{"realmId": realmID})

	// Drain A's playerJoinedRoom(B) + proximityUpdate, and B's joinedRoom +
	// playerJoinedRoom(A) + proximityUpdate (both spawn in room 0 together).
	recvEnvelope(t, connA)
	recvEnvelope(t, connA)
	recvEnvelope(t, connB)
	recvEnvelope(t, connB)
	recvEnvelope(t, connB)

	sendEnvelope(t, connB, "teleport", map[string]interface{}{"x": 5.0, "y": 5.0, "roomIndex": 1})

	// A, left behind in room 0, sees B's teleport (out of its room) plus a
	// proximityUpdate since the pair is broken up.
	left := recvEnvelope(t, connA)
	assert.Equal(t, "playerTeleported", left.Event)
	proxA := recvEnvelope(t, connA)
	assert.Equal(t, "proximityUpdate", proxA.Event)
	var payloadA map[string]interface{}
	require.NoError(t, json.Unmarshal(proxA.Payload, &payloadA))
	assert.Equal(t, "none", payloadA["proximityId"])

	// B, now alone in room 1, only gets its own proximityUpdate; there is no
	// one else in room 1 to send it a playerTeleported.
	proxB := recvEnvelope(t, connB)
	assert.Equal(t, "proximityUpdate", proxB.Event)
}

func TestDispatcher_DisconnectNotifiesOnlyItsOwnRoom(t *testing.T) {
	h := newTestHarness(t)
	defer h.close()

	realmID := uuid.New().String()
	userA := uuid.New().String()
	userB := uuid.New().String()
	h.addRealm(realmID, uuid.New().String(), "")
	h.addProfile(userA, "default")
	h.addProfile(userB, "default")

	connA := h.connect(userA, "Alice")
	defer connA.Close()
	sendEnvelope(t, connA, "joinRealm", map[string]interface{}{"realmId": realmID})
	require.Equal(t, "joinedRoom", recvEnvelope(t, connA).Event)

	connB := h.connect(userB, "Bob")
	sendEnvelope(t, connB, "joinRealm", map[string]interface{}{"realmId": realmID})
	require.Equal(t, "joinedRoom", recvEnvelope(t, connB).Event)
	require.Equal(t, "playerJoinedRoom", recvEnvelope(t, connB).Event)
	require.Equal(t, "proximityUpdate", recvEnvelope(t, connB).Event)

	// Drain A's view of B joining before disconnecting B.
	recvEnvelope(t, connA) // playerJoinedRoom(B)
	recvEnvelope(t, connA) // proximityUpdate

	require.NoError(t, connB.Close())

	left := recvEnvelope(t, connA)
	assert.Equal(t, "playerLeftRoom", left.Event)
	proxA := recvEnvelope(t, connA)
	assert.Equal(t, "proximityUpdate", proxA.Event)
	var payloadA map[string]interface{}
	require.NoError(t, json.Unmarshal(proxA.Payload, &payloadA))
	assert.Equal(t, "none", payloadA["proximityId"])
}

func TestDispatcher_MoveOutOfProximityNotifiesNone(t *testing.T) {
	h := newTestHarness(t)
	defer h.close()

	realmID := uuid.New().String()
	userA := uuid.New().String()
	userB := uuid.New().String()
	h.addRealm(realmID, uuid.New().String(), "")
	h.addProfile(userA, "default")
	h.addProfile(userB, "default")

	connA := h.connect(userA, "Alice")
	defer connA.Close()
	sendEnvelope(t, connA, "joinRealm", map[string]interface{}{"realmId": realmID})
	require.Equal(t, "joinedRoom", recvEnvelope(t, connA).Event)

	connB := h.connect(userB, "Bob")
	defer connB.Close()
	sendEnvelope(t, connB, "joinRealm", map[string]interface{}{"realmId": realmID})

	// Drain A's playerJoinedRoom + proximityUpdate, and B's joinedRoom +
	// playerJoinedRoom(A) + proximityUpdate.
	recvEnvelope(t, connA)
	recvEnvelope(t, connA)
	recvEnvelope(t, connB)
	recvEnvelope(t, connB)
	recvEnvelope(t, connB)

	sendEnvelope(t, connB, "movePlayer", map[string]interface{}{"x": 400.0, "y": 100.0})

	moved := recvEnvelope(t, connA)
	assert.Equal(t, "playerMoved", moved.Event)

	proxA := recvEnvelope(t, connA)
	assert.Equal(t, "proximityUpdate", proxA.Event)
	var payloadA map[string]interface{}
	require.NoError(t, json.Unmarshal(proxA.Payload, &payloadA))
	assert.Equal(t, "none", payloadA["proximityId"])

	proxB := recvEnvelope(t, connB)
	assert.Equal(t, "proximityUpdate", proxB.Event)
	var payloadB map[string]interface{}
	require.NoError(t, json.Unmarshal(proxB.Payload, &payloadB))
	assert.Equal(t, "none", payloadB["proximityId"])
}

func TestDispatcher_KickPlayerRejectsCrossRealmTarget(t *testing.T) {
	h := newTestHarness(t)
	defer h.close()

	ownerA := uuid.New().String()
	realmA := uuid.New().String()
	userA := uuid.New().String()
	h.addRealm(realmA, ownerA, "")
	h.addProfile(ownerA, "default")
	h.addProfile(userA, "default")

	realmB := uuid.New().String()
	userB := uuid.New().String()
	h.addRealm(realmB, uuid.New().String(), "")
	h.addProfile(userB, "default")

	connOwner := h.connect(ownerA, "Owner")
	defer connOwner.Close()
	sendEnvelope(t, connOwner, "joinRealm", map[string]interface{}{"realmId": realmA})
	require.Equal(t, "joinedRoom", recvEnvelope(t, connOwner).Event)

	connA := h.connect(userA, "Alice")
	defer connA.Close()
	sendEnvelope(t, connA, "joinRealm", map[string]interface{}{"realmId": realmA})
	require.Equal(t, "playerJoinedRoom", recvEnvelope(t, connOwner).Event)
	require.Equal(t, "proximityUpdate", recvEnvelope(t, connOwner).Event)
	require.Equal(t, "joinedRoom", recvEnvelope(t, connA).Event)

	// userB is in a realm ownerA does not own and never joined.
	connB := h.connect(userB, "Bob")
	defer connB.Close()
	sendEnvelope(t, connB, "joinRealm", map[string]interface{}{"realmId": realmB})
	require.Equal(t, "joinedRoom", recvEnvelope(t, connB).Event)

	// ownerA attempts to kick userB out of realmB, which it doesn't own and
	// isn't even a member of. It must be rejected, not acted on.
	sendEnvelope(t, connOwner, "kickPlayer", map[string]interface{}{"uid": userB})

	// connB stays open and usable; send a harmless movePlayer to prove it.
	sendEnvelope(t, connB, "movePlayer", map[string]interface{}{"x": 10.0, "y": 10.0})

	connB.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var ev envelope
	err := connB.ReadJSON(&ev)
	if err == nil {
		assert.NotEqual(t, "sessionTerminated", ev.Event)
	}
}
