// Package ctlconfig keeps agentsctl's local settings (connection endpoints
// and provisioning defaults) in a bbolt file under the user config dir, so
// operators are not retyping --nats-url on every call.
package ctlconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	defaultFileName = "agentsctl.db"

	settingsBucket = "settings"
	updatedAtKey   = "__updated_at"
	reservedPrefix = "__"
)

// Keys agentsctl reads. Set and Get accept any non-reserved key so new
// tooling can park values without a code change.
const (
	KeyNATSURL             = "nats_url"
	KeyDatastoreDriver     = "datastore_driver"
	KeyDatastoreDSN        = "datastore_dsn"
	KeyPassphraseFile      = "passphrase_file"
	KeyDefaultProvider     = "default_provider"
	KeyDefaultZone         = "default_zone"
	KeyDefaultInstanceType = "default_instance_type"
	KeyDefaultModel        = "default_model"
)

var (
	ErrStoreClosed = errors.New("settings store is closed")
	ErrInvalidKey  = errors.New("invalid settings key")
)

type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool
}

// Open creates or opens the settings file, creating parent directories as
// needed. The bolt open timeout keeps a second agentsctl from hanging on
// the file lock.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("settings path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure settings dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(settingsBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure settings bucket: %w", err)
	}
	return &Store{db: db, path: trimmed}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}
	var value string
	var found bool
	err := s.view(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(settingsBucket)).Get([]byte(key))
		if raw == nil {
			return nil
		}
		value = string(raw)
		found = true
		return nil
	})
	return value, found, err
}

func (s *Store) Set(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(settingsBucket))
		if err := bucket.Put([]byte(key), []byte(value)); err != nil {
			return fmt.Errorf("write setting %s: %w", key, err)
		}
		return bucket.Put([]byte(updatedAtKey), []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}

func (s *Store) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(settingsBucket)).Delete([]byte(key))
	})
}

// List returns every stored setting, reserved bookkeeping keys excluded.
func (s *Store) List() (map[string]string, error) {
	out := make(map[string]string)
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(settingsBucket)).ForEach(func(key, value []byte) error {
			if strings.HasPrefix(string(key), reservedPrefix) {
				return nil
			}
			out[string(key)] = string(value)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) view(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *Store) update(fn func(*bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}

func validateKey(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" || trimmed != key || strings.HasPrefix(trimmed, reservedPrefix) {
		return ErrInvalidKey
	}
	return nil
}

// DefaultPath places the settings under XDG_CONFIG_HOME, falling back to
// ~/.config and finally the working directory.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
			base = filepath.Join(home, ".config")
		}
	}
	if base == "" {
		if dir, err := os.UserConfigDir(); err == nil && strings.TrimSpace(dir) != "" {
			base = dir
		}
	}
	if base == "" {
		base = "."
	}
	return filepath.Join(base, "inventiv", defaultFileName)
}
