package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postcraft-hq/postcraft/storage"
)

func newTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("POSTCRAFT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTCRAFT_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("could not connect to postgres: %v", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("could not migrate: %v", err)
	}

	pool.Exec(ctx, "DELETE FROM records") //nolint:errcheck

	return NewRepository(pool), func() {
		pool.Exec(ctx, "DELETE FROM records") //nolint:errcheck
		pool.Close()
	}
}

func TestPostgresStorage(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, s.Put("accounts", "user_1", []byte(`{"id":"user_1"}`)))
		got, err := s.Get("accounts", "user_1")
		require.NoError(t, err)
		assert.Equal(t, `{"id":"user_1"}`, string(got))
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, s.Put("accounts", "user_1", []byte(`{"id":"user_1","v":2}`)))
		got, err := s.Get("accounts", "user_1")
		require.NoError(t, err)
		assert.Equal(t, `{"id":"user_1","v":2}`, string(got))
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, s.Put("accounts", "user_2", []byte("{}")))
		keys, err := s.List("accounts")
		require.NoError(t, err)
		assert.Equal(t, []string{"user_1", "user_2"}, keys)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete("accounts", "user_2"))
		_, err := s.Get("accounts", "user_2")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("Update", func(t *testing.T) {
		err := s.Update("accounts", "user_3", func(current []byte) ([]byte, error) {
			assert.Nil(t, current)
			return []byte("fresh"), nil
		})
		require.NoError(t, err)
		got, err := s.Get("accounts", "user_3")
		require.NoError(t, err)
		assert.Equal(t, "fresh", string(got))
	})
}

func TestMigrate_PropagatesGooseError(t *testing.T) {
	dsn := os.Getenv("POSTCRAFT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTCRAFT_TEST_POSTGRES_DSN not set; skipping PostgreSQL tests")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	defer pool.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()
	boom := errors.New("boom")
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return boom
	}

	assert.ErrorIs(t, Migrate(context.Background(), pool), boom)
}

func TestUpdate_ConcurrentFirstWrites(t *testing.T) {
	s, cleanup := newTestStore(t)
	defer cleanup()

	const workers, rounds = 8, 5
	errSkip := errors.New("exists")

	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds*2)
	for w := 0; w < workers; w++ {
		wg.Add(2)
		// Creators only write when the key is missing, like a first-seen
		// account registration.
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				err := s.Update("accounts", "racy", func(current []byte) ([]byte, error) {
					if current != nil {
						return nil, errSkip
					}
					return []byte("0"), nil
				})
				if err != nil && !errors.Is(err, errSkip) {
					errs <- err
				}
			}
		}()
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				errs <- s.Update("accounts", "racy", func(current []byte) ([]byte, error) {
					n := 0
					if current != nil {
						var err error
						if n, err = strconv.Atoi(string(current)); err != nil {
							return nil, err
						}
					}
					return []byte(strconv.Itoa(n + 1)), nil
				})
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Get("accounts", "racy")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(workers*rounds), string(got), "no increment may be lost")
}
