package apps

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotStored indicates no catalog has been persisted yet.
var ErrNotStored = errors.New("apps: no stored catalog")

// Store persists the app catalog between restarts so the bridge can start
// offline from the vendor catalog host.
type Store interface {
	Load() ([]App, error)
	Save(catalog []App) error
}

// FileStore keeps the catalog as a JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to path. The parent directory must
// exist; the file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() ([]App, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotStored
		}
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var catalog []App
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	return catalog, nil
}

// Save writes atomically via a temp file rename so a crash mid-write never
// corrupts the stored catalog.
func (s *FileStore) Save(catalog []App) error {
	data, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write catalog file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace catalog file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)

// DefaultStorePath returns the catalog path under the given config dir.
func DefaultStorePath(configDir string) string {
	return filepath.Join(configDir, "smartcast_apps.json")
}
