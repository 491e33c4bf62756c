package onboarding

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/postcraft-hq/postcraft/storage"
)

// Namespace is the storage namespace holding onboarding entries.
const Namespace = "onboarding"

// StorageKey is the persisted key for a user's onboarding state.
func StorageKey(userKey string) string {
	return "onboarding-state:" + userKey
}

// Store persists onboarding state between runs. Like browser local
// storage, writes are best effort: failures are logged, never returned.
type Store interface {
	// Load returns the stored state, or false if none exists or it
	// cannot be decoded.
	Load(userKey string) (State, bool)
	Save(userKey string, st State)
	Clear(userKey string)
}

// marshalState encodes state for both stores; tests replace it.
var marshalState = func(st State) ([]byte, error) { return json.Marshal(st) }

// MemoryStore keeps state in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	logger  *slog.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore. A nil logger uses
// slog.Default.
func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{entries: make(map[string][]byte), logger: logger}
}

func (s *MemoryStore) Load(userKey string) (State, bool) {
	s.mu.RLock()
	data, ok := s.entries[StorageKey(userKey)]
	s.mu.RUnlock()
	if !ok {
		return State{}, false
	}
	return decodeState(data)
}

func (s *MemoryStore) Save(userKey string, st State) {
	data, err := marshalState(st)
	if err != nil {
		s.logger.Warn("onboarding: encode state failed", "user", userKey, "error", err)
		return
	}
	s.mu.Lock()
	s.entries[StorageKey(userKey)] = data
	s.mu.Unlock()
}

func (s *MemoryStore) Clear(userKey string) {
	s.mu.Lock()
	delete(s.entries, StorageKey(userKey))
	s.mu.Unlock()
}

// RepositoryStore keeps state in a storage.Repository as JSON.
type RepositoryStore struct {
	repo   storage.Repository
	logger *slog.Logger
}

var _ Store = (*RepositoryStore)(nil)

// NewRepositoryStore creates a store backed by repo.
func NewRepositoryStore(repo storage.Repository, logger *slog.Logger) *RepositoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RepositoryStore{repo: repo, logger: logger}
}

func (s *RepositoryStore) Load(userKey string) (State, bool) {
	data, err := s.repo.Get(Namespace, StorageKey(userKey))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("onboarding: load state failed", "user", userKey, "error", err)
		}
		return State{}, false
	}
	st, ok := decodeState(data)
	if !ok {
		s.logger.Warn("onboarding: discarding unreadable state", "user", userKey)
	}
	return st, ok
}

func (s *RepositoryStore) Save(userKey string, st State) {
	data, err := marshalState(st)
	if err != nil {
		s.logger.Warn("onboarding: encode state failed", "user", userKey, "error", err)
		return
	}
	if err := s.repo.Put(Namespace, StorageKey(userKey), data); err != nil {
		s.logger.Warn("onboarding: save state failed", "user", userKey, "error", err)
	}
}

func (s *RepositoryStore) Clear(userKey string) {
	err := s.repo.Delete(Namespace, StorageKey(userKey))
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("onboarding: clear state failed", "user", userKey, "error", err)
	}
}

func decodeState(data []byte) (State, bool) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, false
	}
	return st.normalize(), true
}
