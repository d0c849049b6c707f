package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/dbx"
)

// Keys of the metadata table holding the session.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyExpiresAt    = "expires_at"
	keyUserID       = "user_id"
	keyEmail        = "email"
)

var sessionKeys = []string{keyAccessToken, keyRefreshToken, keyExpiresAt, keyUserID, keyEmail}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save replaces the stored session in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, s *platform.Session) error {
	values := map[string]string{
		keyAccessToken:  s.AccessToken,
		keyRefreshToken: s.RefreshToken,
		keyExpiresAt:    s.ExpiresAt.UTC().Format(time.RFC3339),
		keyUserID:       s.User.ID,
		keyEmail:        s.User.Email,
	}

	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := clearKeys(ctx, tx); err != nil {
			return err
		}
		for _, k := range sessionKeys {
			if err := set(ctx, tx, k, []byte(values[k])); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) Load(ctx context.Context) (*platform.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		values[key] = string(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}

	if values[keyAccessToken] == "" {
		return nil, nil
	}

	s := &platform.Session{
		AccessToken:  values[keyAccessToken],
		RefreshToken: values[keyRefreshToken],
		User:         platform.User{ID: values[keyUserID], Email: values[keyEmail]},
	}
	if v := values[keyExpiresAt]; v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", keyExpiresAt, err)
		}
		s.ExpiresAt = t
	}
	return s, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	return clearKeys(ctx, r.db)
}

func set(ctx context.Context, db dbx.DBTX, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

func clearKeys(ctx context.Context, db dbx.DBTX) error {
	for _, k := range sessionKeys {
		if _, err := db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, k); err != nil {
			return fmt.Errorf("failed to delete metadata[%s]: %w", k, err)
		}
	}
	return nil
}
