package checkpoint

import (
	"context"
	"os"
	"path/filepath"

	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
	"github.com/scan-io-git/ot-collector/pkg/shared/files"
)

// FileStore keeps one JSON file per source in Dir.
type FileStore struct {
	Dir string
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the file holding the state of key.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.Dir, objectName(key))
}

func (s *FileStore) Load(_ context.Context, key string) (State, error) {
	data, err := os.ReadFile(s.Path(key))
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return nil, errors.NewPersistenceError("load", key, err)
	}

	state, err := decodeState(data)
	if err != nil {
		return nil, errors.NewPersistenceError("load", key, err)
	}
	return state, nil
}

// Save writes state through a temporary file renamed over the previous one.
func (s *FileStore) Save(_ context.Context, key string, state State) error {
	data, err := encodeState(state)
	if err != nil {
		return errors.NewPersistenceError("save", key, err)
	}
	if err := files.WriteFileAtomic(s.Path(key), data, 0o600); err != nil {
		return errors.NewPersistenceError("save", key, err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		return errors.NewPersistenceError("delete", key, err)
	}
	return nil
}
