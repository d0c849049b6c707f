package credentials

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/client/storage"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleSession() *platform.Session {
	return &platform.Session{
		AccessToken:  "at",
		RefreshToken: "rt",
		ExpiresAt:    time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
		User:         platform.User{ID: "u1", Email: "a@x.com"},
	}
}

func TestLoad_EmptyReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	s, err := r.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, sampleSession()))

	s, err := r.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, sampleSession().AccessToken, s.AccessToken)
	assert.Equal(t, sampleSession().RefreshToken, s.RefreshToken)
	assert.Equal(t, sampleSession().User, s.User)
	assert.True(t, sampleSession().ExpiresAt.Equal(s.ExpiresAt))
}

func TestSave_OverwritesPreviousSession(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, sampleSession()))
	next := sampleSession()
	next.AccessToken = "at2"
	next.User.Email = "b@x.com"
	require.NoError(t, r.Save(ctx, next))

	s, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "at2", s.AccessToken)
	assert.Equal(t, "b@x.com", s.User.Email)
}

func TestClear_RemovesSession(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, sampleSession()))
	require.NoError(t, r.Clear(ctx))
	require.NoError(t, r.Clear(ctx))

	s, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoad_CorruptExpiry(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, sampleSession()))
	_, err := db.Exec(`UPDATE metadata SET value = 'yesterday' WHERE key = 'expires_at'`)
	require.NoError(t, err)

	_, err = r.Load(ctx)
	require.ErrorContains(t, err, "expires_at")
}

func TestErrorsWrapped_WhenDBClosed(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Load(ctx)
	require.ErrorContains(t, err, "failed to load session")

	require.Error(t, r.Save(ctx, sampleSession()))
	require.ErrorContains(t, r.Clear(ctx), "failed to delete metadata")
}
