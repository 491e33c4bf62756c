package onboarding

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bboltstore "github.com/postcraft-hq/postcraft/storage/bbolt"
	"github.com/postcraft-hq/postcraft/storage/memory"
)

func TestRepositoryStore_RoundTripAndClear(t *testing.T) {
	repo := memory.NewRepository()
	s := NewRepositoryStore(repo, nil)

	_, ok := s.Load("alice")
	assert.False(t, ok)

	st := NewState()
	st.IsActive = true
	st.CurrentStepIndex = 2
	st.CompletedSteps = []StepID{StepWelcome, StepFeatures}
	s.Save("alice", st)

	raw, err := repo.Get(Namespace, "onboarding-state:alice")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"completedSteps":["welcome","features"]`)

	got, ok := s.Load("alice")
	require.True(t, ok)
	assert.Equal(t, st, got)

	s.Clear("alice")
	_, ok = s.Load("alice")
	assert.False(t, ok)
	s.Clear("alice")
}

func TestRepositoryStore_UnreadableOrOutOfRange(t *testing.T) {
	repo := memory.NewRepository()
	s := NewRepositoryStore(repo, nil)

	require.NoError(t, repo.Put(Namespace, StorageKey("bob"), []byte("{not json")))
	_, ok := s.Load("bob")
	assert.False(t, ok)

	require.NoError(t, repo.Put(Namespace, StorageKey("bob"), []byte(`{"currentStepIndex":9}`)))
	st, ok := s.Load("bob")
	require.True(t, ok)
	assert.Equal(t, 0, st.CurrentStepIndex)
	assert.NotNil(t, st.CompletedSteps)
}

func TestRepositoryStore_BboltPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "onboarding.db")

	repo, err := bboltstore.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	f := NewFlow("carol", NewRepositoryStore(repo, nil), nil)
	f.Start()
	f.GoToStep(2)
	f.UpdatePreferences(Preferences{Industry: ptr("Media")})
	require.NoError(t, repo.Close())

	repo, err = bboltstore.NewRepositoryFromFile(path, nil)
	require.NoError(t, err)
	defer repo.Close()

	resumed := NewFlow("carol", NewRepositoryStore(repo, nil), nil)
	assert.Equal(t, 2, resumed.State().CurrentStepIndex)
	assert.Equal(t, "Media", *resumed.State().UserPreferences.Industry)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(nil)
	st := NewState()
	st.HasSkipped = true
	s.Save("dave", st)

	got, ok := s.Load("dave")
	require.True(t, ok)
	assert.True(t, got.HasSkipped)

	s.Clear("dave")
	_, ok = s.Load("dave")
	assert.False(t, ok)
}

func TestMemoryStore_EncodeFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	s := NewMemoryStore(slog.New(slog.NewTextHandler(&logs, nil)))
	st := NewState()
	st.CurrentStepIndex = 1
	s.Save("erin", st)

	orig := marshalState
	marshalState = func(State) ([]byte, error) { return nil, errors.New("encoder broke") }
	t.Cleanup(func() { marshalState = orig })

	st.CurrentStepIndex = 2
	s.Save("erin", st)

	assert.Contains(t, logs.String(), "encode state failed")
	assert.Contains(t, logs.String(), "encoder broke")
	got, ok := s.Load("erin")
	require.True(t, ok)
	assert.Equal(t, 1, got.CurrentStepIndex, "failed save keeps the previous entry")
}
