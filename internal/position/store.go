package position

import (
	"fmt"
	"strings"
	"time"

	"upbot/internal/pkg/jsonutil"
)

type Store interface {
	Load() (*State, error)
	Save(st *State) error
}

// FileStore keeps the state as one JSON document, replaced whole on save.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("state path cannot be empty")
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Path() string { return f.path }

// Load returns an empty state when the file does not exist yet. Unknown
// statuses or broken invariants are returned as errors.
func (f *FileStore) Load() (*State, error) {
	st := NewState()
	if _, err := jsonutil.ReadFile(f.path, st); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if st.Cooldowns == nil {
		st.Cooldowns = make(map[string]time.Time)
	}
	for _, s := range st.Slots {
		if s != nil {
			s.normalize()
		}
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("load state %s: %w", f.path, err)
	}
	return st, nil
}

func (f *FileStore) Save(st *State) error {
	if err := jsonutil.WriteFile(f.path, st); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
