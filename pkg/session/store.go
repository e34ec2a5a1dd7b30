package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/freddiev4/rune/internal/observability"
)

// Store persists whole sessions as JSON documents under a directory,
// one file per session id.
type Store struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// NewStore creates a session store rooted at dir. An empty dir defaults to
// ~/.rune/sessions.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".rune", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	st := &Store{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", dir).Msg("Session store initialized")
	st.updateActiveSessionsMetric()

	return st, nil
}

// validateID rejects ids that could escape the store directory.
func (st *Store) validateID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("session id cannot contain '..'")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("session id cannot contain path separators")
	}
	if strings.Contains(id, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	return nil
}

func (st *Store) path(id string) string {
	return filepath.Join(st.dir, id+".json")
}

func (st *Store) lockFor(id string) *sync.Mutex {
	st.locksMu.Lock()
	defer st.locksMu.Unlock()

	if lock, ok := st.writeLocks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	st.writeLocks[id] = lock
	return lock
}

func (st *Store) updateActiveSessionsMetric() {
	ids, err := st.List()
	if err != nil {
		return
	}
	observability.SetActiveSessions(len(ids))
}

// Save writes the session document atomically.
func (st *Store) Save(s *Session) error {
	if s == nil {
		return fmt.Errorf("session is required")
	}
	if err := st.validateID(s.ID); err != nil {
		return err
	}

	lock := st.lockFor(s.ID)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	path := st.path(s.ID)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	st.updateActiveSessionsMetric()
	log.Debug().Str("session_id", s.ID).Int("messages", len(s.Messages)).Msg("Session saved")

	return nil
}

// Load reads a session document by id.
func (st *Store) Load(id string) (*Session, error) {
	if err := st.validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(st.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s does not exist", id)
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}

	log.Debug().Str("session_id", s.ID).Int("messages", len(s.Messages)).Msg("Session loaded")

	return &s, nil
}

// Delete removes a persisted session. Deleting a missing session is not an error.
func (st *Store) Delete(id string) error {
	if err := st.validateID(id); err != nil {
		return err
	}

	lock := st.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(st.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}

	st.locksMu.Lock()
	delete(st.writeLocks, id)
	st.locksMu.Unlock()

	st.updateActiveSessionsMetric()
	log.Info().Str("session_id", id).Msg("Session deleted")

	return nil
}

// List returns the ids of all persisted sessions.
func (st *Store) List() ([]string, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	return ids, nil
}
