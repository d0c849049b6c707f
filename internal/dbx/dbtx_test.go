package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:dbx_tests?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`DROP TABLE IF EXISTS kv; CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT);`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
	return n
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := setupDB(t)
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO kv(k, v) VALUES ('access_token', 'a')`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO kv(k, v) VALUES ('refresh_token', 'r')`)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, countRows(t, db))
}

func TestWithTx_RollbackOnFnError(t *testing.T) {
	db := setupDB(t)
	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO kv(k, v) VALUES ('access_token', 'a')`)
		require.NoError(t, e)
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 0, countRows(t, db), "partial credential writes must not survive")
}

func TestWithTx_RollbackOnPanic(t *testing.T) {
	db := setupDB(t)
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic to propagate")
		}
		require.Equal(t, 0, countRows(t, db))
	}()

	_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO kv(k, v) VALUES ('x', 'y')`)
		require.NoError(t, e)
		panic("kaput")
	})
}

func TestWithTx_BeginError(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, db.Close())

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error { return nil })
	require.Error(t, err)
}
