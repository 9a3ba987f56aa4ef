package credstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// DatabaseFile is the sqlstore file kept inside every session directory.
const DatabaseFile = "session.db"

var ErrInvalidIdentity = errors.New("identity is not a valid session directory name")

// Store is the opaque authentication state of one session.
type Store interface {
	// Device returns the whatsmeow device the client is bound to.
	Device() *store.Device
	// Save persists the current device credentials. It is called once per
	// credential update, in emission order.
	Save(ctx context.Context) error
	Close() error
}

// Loader opens the credential store of a session, creating it when missing.
type Loader interface {
	Load(ctx context.Context, identity string) (Store, error)
	Delete(identity string) error
	ListIdentities() ([]string, error)
}

// Manager keeps one subdirectory per session identity under root.
type Manager struct {
	root string
	log  waLog.Logger
}

func NewManager(root string, log waLog.Logger) *Manager {
	if log == nil {
		log = waLog.Noop
	}
	return &Manager{root: root, log: log}
}

// Dir returns the credential directory of identity.
func (m *Manager) Dir(identity string) (string, error) {
	if err := CheckIdentity(identity); err != nil {
		return "", err
	}
	return filepath.Join(m.root, identity), nil
}

// CheckIdentity rejects identities that are not a single plain path element.
func CheckIdentity(identity string) error {
	switch {
	case identity == "", identity == ".", identity == "..":
		return ErrInvalidIdentity
	case strings.ContainsAny(identity, "/\\\x00"):
		return ErrInvalidIdentity
	}
	return nil
}

// Load opens (or creates) the sqlstore database of identity and returns its
// first device, or a fresh unpaired device when none is stored yet.
func (m *Manager) Load(ctx context.Context, identity string) (Store, error) {
	dir, err := m.Dir(identity)
	if err != nil {
		return nil, err
	}
	_, statErr := os.Stat(dir)
	created := os.IsNotExist(statErr)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "create session dir %s", dir)
	}
	// a directory created by this call is removed again if the load fails
	discard := func() {
		if created {
			_ = os.RemoveAll(dir)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(dir, DatabaseFile))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		discard()
		return nil, errors.Wrap(err, "open session database")
	}

	container := sqlstore.NewWithDB(db, "sqlite3", m.log.Sub(identity))
	if err := container.Upgrade(ctx); err != nil {
		_ = db.Close()
		discard()
		return nil, errors.Wrap(err, "upgrade session database")
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = db.Close()
		discard()
		return nil, errors.Wrap(err, "load session device")
	}
	zap.L().Debug("credstore: session loaded",
		zap.String("identity", identity),
		zap.Bool("paired", device.ID != nil))

	return &SQLStore{identity: identity, db: db, container: container, device: device}, nil
}

// Delete removes the credential directory of identity recursively.
func (m *Manager) Delete(identity string) error {
	dir, err := m.Dir(identity)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "remove session dir %s", dir)
	}
	return nil
}

// ListIdentities returns the names of every session directory under root.
// A missing root yields an empty list.
func (m *Manager) ListIdentities() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read sessions dir %s", m.root)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || CheckIdentity(e.Name()) != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// SQLStore is the sqlstore-backed credential store of one session.
type SQLStore struct {
	identity  string
	db        *sql.DB
	container *sqlstore.Container
	device    *store.Device
}

func (s *SQLStore) Device() *store.Device {
	return s.device
}

// Save writes the device row. An unpaired device has nothing to persist yet.
func (s *SQLStore) Save(ctx context.Context) error {
	if s.device == nil || s.device.ID == nil {
		return nil
	}
	if err := s.container.PutDevice(ctx, s.device); err != nil {
		return errors.Wrapf(err, "save credentials of %s", s.identity)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
