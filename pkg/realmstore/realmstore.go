// Package realmstore defines the coordination server's view of the
// external realm store — LoadRealm(realmId) and LoadProfile(userId) — and
// ships a reference FileStore backed by YAML fixtures on disk, for local
// development and tests. It is explicitly not "the" realm store: the HTTP
// surface (out of scope here) owns the authoritative one; this is only a
// substitutable reference the dispatcher can be driven against.
package realmstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"realmhub/pkg/integration"
)

// ErrNotFound is returned by LoadRealm/LoadProfile when the named record
// does not exist.
var ErrNotFound = errors.New("realmstore: record not found")

// Realm is the persisted record a realm store holds per realm.
type Realm struct {
	RealmID string `yaml:"realmId"`
	OwnerID string `yaml:"ownerId"`
	ShareID string `yaml:"shareId,omitempty"`
	MapData []byte `yaml:"mapData"`
}

// Profile is the persisted record a realm store holds per user.
type Profile struct {
	UserID string `yaml:"userId"`
	Skin   string `yaml:"skin"`
}

// Store is the external collaborator the dispatcher's join protocol reads
// through. Both lookups are opaque external capabilities that may fail
// transiently; callers (the dispatcher) wrap calls with resilience.
type Store interface {
	LoadRealm(ctx context.Context, realmID string) (Realm, error)
	LoadProfile(ctx context.Context, userID string) (Profile, error)
}

// Notifier is called by the HTTP surface (out of scope here) whenever a
// realm's persisted record changes, so the dispatcher can evict the live
// session. server.Dispatcher implements it; wiring the HTTP surface to call
// it is the out-of-scope CRUD layer's job.
type Notifier interface {
	NotifyRealmChanged(realmID string)
}

// FileStore is a reference Store backed by one YAML file per realm/profile
// under dataDir, written via writeRecordFile's temp-file-then-rename
// durability guarantee and guarded by a recordLock per file against
// concurrent writers from another process.
type FileStore struct {
	dataDir string
	mu      sync.RWMutex
}

// NewFileStore creates a FileStore rooted at dataDir, creating it if needed.
// Realm records live under realms/, profile records under profiles/.
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("realmstore: create data directory %s: %w", dataDir, err)
	}
	return &FileStore{dataDir: dataDir}, nil
}

func (s *FileStore) realmPath(realmID string) string {
	return filepath.Join(s.dataDir, "realms", realmID+".yaml")
}

func (s *FileStore) profilePath(userID string) string {
	return filepath.Join(s.dataDir, "profiles", userID+".yaml")
}

// loadRecord locks path for reads, unmarshals its YAML into out, and wraps
// a missing file as ErrNotFound. The disk read itself runs behind
// integration.ExecuteFileSystemOperation, so a flaky mount or a burst of
// concurrent lock contention is retried and circuit-broken the same way the
// identity and realm-store network boundaries are.
func (s *FileStore) loadRecord(ctx context.Context, path string, out interface{}) error {
	return integration.ExecuteFileSystemOperation(ctx, func(ctx context.Context) error {
		s.mu.RLock()
		defer s.mu.RUnlock()

		if _, err := os.Stat(path); os.IsNotExist(err) {
			return ErrNotFound
		}

		lock, err := newRecordLock(path)
		if err != nil {
			return err
		}
		defer lock.close()
		if err := lock.lock(); err != nil {
			return err
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("realmstore: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("realmstore: unmarshal %s: %w", path, err)
		}
		return nil
	})
}

// saveRecord locks path for writes and atomically persists in as YAML,
// also routed through integration.ExecuteFileSystemOperation.
func (s *FileStore) saveRecord(ctx context.Context, path string, in interface{}) error {
	return integration.ExecuteFileSystemOperation(ctx, func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		lock, err := newRecordLock(path)
		if err != nil {
			return err
		}
		defer lock.close()
		if err := lock.lock(); err != nil {
			return err
		}

		raw, err := yaml.Marshal(in)
		if err != nil {
			return fmt.Errorf("realmstore: marshal %s: %w", path, err)
		}
		if err := writeRecordFile(path, raw, 0o644); err != nil {
			return fmt.Errorf("realmstore: write %s: %w", path, err)
		}

		logrus.WithFields(logrus.Fields{
			"function": "saveRecord",
			"path":     path,
			"size":     len(raw),
		}).Debug("record saved")
		return nil
	})
}

// LoadRealm reads a realm's record from disk.
func (s *FileStore) LoadRealm(ctx context.Context, realmID string) (Realm, error) {
	var r Realm
	if err := s.loadRecord(ctx, s.realmPath(realmID), &r); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Realm{}, fmt.Errorf("%w: realm %s", ErrNotFound, realmID)
		}
		return Realm{}, err
	}
	return r, nil
}

// LoadProfile reads a user's profile record from disk.
func (s *FileStore) LoadProfile(ctx context.Context, userID string) (Profile, error) {
	var p Profile
	if err := s.loadRecord(ctx, s.profilePath(userID), &p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Profile{}, fmt.Errorf("%w: profile %s", ErrNotFound, userID)
		}
		return Profile{}, err
	}
	return p, nil
}

// SaveRealm writes a realm's record to disk. Exercised by tests and by the
// Touch helper below; the authoritative write path in a real deployment is
// the out-of-scope HTTP surface.
func (s *FileStore) SaveRealm(ctx context.Context, r Realm) error {
	return s.saveRecord(ctx, s.realmPath(r.RealmID), r)
}

// SaveProfile writes a user's profile record to disk.
func (s *FileStore) SaveProfile(ctx context.Context, p Profile) error {
	return s.saveRecord(ctx, s.profilePath(p.UserID), p)
}

// Touch re-saves a realm's existing record unchanged and calls n, simulating
// the external mutation that should trigger SessionManager.EvictRealm. It
// exists for tests to exercise the eviction path without a real HTTP
// surface.
func (s *FileStore) Touch(ctx context.Context, realmID string, n Notifier) error {
	r, err := s.LoadRealm(ctx, realmID)
	if err != nil {
		return err
	}
	if err := s.SaveRealm(ctx, r); err != nil {
		return err
	}
	n.NotifyRealmChanged(realmID)
	return nil
}
