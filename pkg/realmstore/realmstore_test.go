package realmstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	notified []string
}

func (n *recordingNotifier) NotifyRealmChanged(realmID string) {
	n.notified = append(n.notified, realmID)
}

func TestFileStore_SaveAndLoadRealm(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	in := Realm{RealmID: "realm-1", OwnerID: "owner-a", ShareID: "share-xyz", MapData: []byte(`{"rooms":[]}`)}
	require.NoError(t, store.SaveRealm(context.Background(), in))

	out, err := store.LoadRealm(context.Background(), "realm-1")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFileStore_LoadRealm_NotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.LoadRealm(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_SaveAndLoadProfile(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	in := Profile{UserID: "user-a", Skin: "blue"}
	require.NoError(t, store.SaveProfile(context.Background(), in))

	out, err := store.LoadProfile(context.Background(), "user-a")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFileStore_LoadProfile_NotFound(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.LoadProfile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_Touch_NotifiesAndPreservesRecord(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.SaveRealm(context.Background(), Realm{RealmID: "realm-1", OwnerID: "owner-a"}))

	n := &recordingNotifier{}
	require.NoError(t, store.Touch(context.Background(), "realm-1", n))

	assert.Equal(t, []string{"realm-1"}, n.notified)
	r, err := store.LoadRealm(context.Background(), "realm-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-a", r.OwnerID)
}

func TestFileStore_Touch_UnknownRealm(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	n := &recordingNotifier{}
	err = store.Touch(context.Background(), "nope", n)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, n.notified)
}
