// Package platform describes the capabilities the client consumes from the
// hosted backend: accounts, tables, change notifications and blob storage.
//
// Implementations live in sub-packages. supabase speaks the public HTTP,
// WebSocket and S3 protocols of a Supabase-compatible service; platformtest
// is an in-memory double used by tests.
package platform

import (
	"context"
	"time"
)

// Table names used by the client.
const (
	TableArticles = "articles"
	TableProfiles = "profiles"
)

// AvatarBucket is the public bucket holding uploaded avatars.
const AvatarBucket = "avatars"

// User is the account part of a Session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an issued credential set.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

// Active reports whether s carries an access token.
func (s *Session) Active() bool {
	return s != nil && s.AccessToken != ""
}

// Auth manages accounts and tokens.
//
// SignUp returns a Session holding only the User, with no tokens, when the
// platform requires the address to be confirmed before the first sign-in.
type Auth interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// Filter is an equality condition on a column.
type Filter struct {
	Column string
	Value  any
}

// Eq builds a Filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: value}
}

// Order sorts a selection by one column.
type Order struct {
	Column     string
	Descending bool
}

// Embed joins a related table into each selected row. ForeignKey is the
// column of the selected table referencing the embedded table's id; the
// embedded object is stored under the Table key and is null when no row
// matches.
type Embed struct {
	Table      string
	ForeignKey string
	Columns    []string
}

// Query describes a selection.
type Query struct {
	Table   string
	Columns []string
	Embeds  []Embed
	Filters []Filter
	Order   *Order
}

// Tables is row-level access to the platform's relational store. Every call
// runs with the caller's authorization; rows the caller may not see are
// silently filtered. dest receives a JSON array of rows.
type Tables interface {
	Select(ctx context.Context, q Query, dest any) error
	Insert(ctx context.Context, table string, record any, dest any) error
	Update(ctx context.Context, table string, filters []Filter, patch any, dest any) error
	Delete(ctx context.Context, table string, filters []Filter) error
}

// EventType is the kind of row change.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent reports that some row of Table changed. It carries no row data;
// consumers re-query.
type ChangeEvent struct {
	Table string
	Type  EventType
}

// Subscription is a live change feed. Events is closed after Close or when
// the subscribing context ends.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}

// Changes opens change feeds keyed by table.
type Changes interface {
	Subscribe(ctx context.Context, table string) (Subscription, error)
}

// Blobs stores files. There is no access-control parameter: what a bucket
// exposes is decided by the bucket.
type Blobs interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
	PublicURL(bucket, path string) string
}

// TokenSource yields the bearer token for the current caller, or an empty
// string when nobody is signed in.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }

// Anonymous is a TokenSource that never has a token.
var Anonymous TokenSource = TokenFunc(func(context.Context) (string, error) { return "", nil })
