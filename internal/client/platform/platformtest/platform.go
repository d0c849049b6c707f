// Package platformtest provides an in-memory implementation of the platform
// capabilities for tests.
//
// It keeps the behaviours the client relies on: row-level policies that
// silently filter reads and writes, HS256 access tokens with an expiry,
// rotating refresh tokens, bcrypt-hashed passwords, a public avatars bucket
// and table-scoped change feeds. Distinct messages are returned for an
// unknown email and a wrong password.
//
// Any operation can be made to fail once with FailNext.
package platformtest

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
)

// Op names an operation for fault injection and call counting.
type Op string

const (
	OpSignIn    Op = "signin"
	OpSignUp    Op = "signup"
	OpSignOut   Op = "signout"
	OpRefresh   Op = "refresh"
	OpSelect    Op = "select"
	OpInsert    Op = "insert"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpUpload    Op = "upload"
	OpSubscribe Op = "subscribe"
)

type opKey struct {
	op     Op
	target string
}

// Platform is the shared backend state. Use Connect to obtain per-caller
// access to tables, blobs and change feeds; Platform itself implements
// platform.Auth.
type Platform struct {
	mu sync.Mutex

	secret      []byte
	baseURL     string
	tokenTTL    time.Duration
	autoConfirm bool

	accounts map[string]*account // by email
	refresh  map[string]string   // refresh token -> user id

	tables map[string][]row
	blobs  map[string]blob
	subs   map[*subscription]struct{}

	faults map[opKey][]error
	calls  map[opKey]int

	last time.Time
}

// Option configures a Platform.
type Option func(*Platform)

// WithTokenTTL sets the lifetime of issued access tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(p *Platform) { p.tokenTTL = d }
}

// WithEmailConfirmation makes SignUp return a tokenless session, and SignIn
// fail, until ConfirmEmail is called for the address.
func WithEmailConfirmation() Option {
	return func(p *Platform) { p.autoConfirm = false }
}

// WithBaseURL sets the prefix of public blob URLs.
func WithBaseURL(u string) Option {
	return func(p *Platform) { p.baseURL = u }
}

// New returns an empty platform with the articles and profiles tables and
// the public avatars bucket.
func New(opts ...Option) *Platform {
	p := &Platform{
		secret:      []byte("platformtest-jwt-secret"),
		baseURL:     "http://platform.test",
		tokenTTL:    time.Hour,
		autoConfirm: true,
		accounts:    map[string]*account{},
		refresh:     map[string]string{},
		tables: map[string][]row{
			platform.TableArticles: nil,
			platform.TableProfiles: nil,
		},
		blobs:  map[string]blob{},
		subs:   map[*subscription]struct{}{},
		faults: map[opKey][]error{},
		calls:  map[opKey]int{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// FailNext makes the next op on target return err. target is a table or
// bucket name, or "" for auth operations. Calls queue up.
func (p *Platform) FailNext(op Op, target string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := opKey{op, target}
	p.faults[k] = append(p.faults[k], err)
}

// Calls returns how many times op ran against target, failed calls included.
func (p *Platform) Calls(op Op, target string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[opKey{op, target}]
}

// enter counts the call and pops an injected fault. Callers hold p.mu.
func (p *Platform) enter(op Op, target string) error {
	k := opKey{op, target}
	p.calls[k]++
	q := p.faults[k]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	if len(q) == 1 {
		delete(p.faults, k)
	} else {
		p.faults[k] = q[1:]
	}
	return err
}

// tick is a strictly increasing clock with microsecond resolution, so rows
// created back to back still sort deterministically. Callers hold p.mu.
func (p *Platform) tick() time.Time {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(p.last) {
		now = p.last.Add(time.Microsecond)
	}
	p.last = now
	return now
}

// Connect returns a connection acting as whoever tokens yields.
func (p *Platform) Connect(tokens platform.TokenSource) *Conn {
	if tokens == nil {
		tokens = platform.Anonymous
	}
	return &Conn{p: p, tokens: tokens}
}

// Conn is a caller's view of the platform. It implements platform.Tables,
// platform.Blobs and platform.Changes.
type Conn struct {
	p      *Platform
	tokens platform.TokenSource
}

var (
	_ platform.Auth    = (*Platform)(nil)
	_ platform.Tables  = (*Conn)(nil)
	_ platform.Blobs   = (*Conn)(nil)
	_ platform.Changes = (*Conn)(nil)
)
