package payload

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/offloadlab/offload/pkg/core"
)

// Store is the out-of-band backing location for redirect-encoded payloads.
// Entries are single-use: Take evicts on first successful read.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore returns a store backed by dir. The directory must exist for
// reads; Put creates it on demand.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// Put parks data under a fresh key and returns the key.
func (s *Store) Put(data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("offload: creating payload store: %w", err)
	}
	key := ulid.Make().String()
	if err := os.WriteFile(filepath.Join(s.dir, key), data, 0o600); err != nil {
		return "", fmt.Errorf("offload: writing payload %s: %w", key, err)
	}
	return key, nil
}

// Take reads and evicts the entry for key. A second Take of the same key
// reports core.ErrPayloadUnavailable.
func (s *Store) Take(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dir, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrPayloadUnavailable, key)
		}
		return nil, fmt.Errorf("offload: reading payload %s: %w", key, err)
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("offload: evicting payload %s: %w", key, err)
	}
	return data, nil
}

// Cleanup removes the backing directory and everything in it.
func (s *Store) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(s.dir)
}

var (
	sharedMu sync.Mutex
	shared   *Store
)

// Shared returns the process-wide store, creating it lazily. The backing
// directory is taken from OFFLOAD_STORE_DIR when set (so references encoded
// by a parent resolve in its isolated children); otherwise a fresh temp dir
// is created and exported to the environment for children to inherit.
// Teardown is scheduled by the harness at exit, not per call.
func Shared() (*Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared != nil {
		return shared, nil
	}

	if dir := os.Getenv(core.EnvStoreDir); dir != "" {
		shared = NewStore(dir)
		return shared, nil
	}

	dir, err := os.MkdirTemp("", "offload-store-")
	if err != nil {
		return nil, fmt.Errorf("offload: creating shared payload store: %w", err)
	}
	if err := os.Setenv(core.EnvStoreDir, dir); err != nil {
		return nil, fmt.Errorf("offload: exporting store dir: %w", err)
	}
	shared = NewStore(dir)
	return shared, nil
}

// CleanupShared tears down the process-wide store if one was created.
// Harness.Run schedules this on exit.
func CleanupShared() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		return nil
	}
	err := shared.Cleanup()
	if os.Getenv(core.EnvStoreDir) == shared.dir {
		os.Unsetenv(core.EnvStoreDir)
	}
	shared = nil
	return err
}
