// Package session tracks the signed-in identity of the client.
//
// The Manager owns the only copy of the current platform session. It
// restores a persisted session once per process, keeps the access token
// fresh, and publishes every identity change to its subscribers before the
// call that caused it returns.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/vulnblog/internal/client/models"
	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/vulnblog/internal/common"
	"github.com/dmitrijs2005/vulnblog/internal/logging"
)

const defaultRefreshMargin = 30 * time.Second

// ProfileCreator writes the profile row of a new account.
type ProfileCreator interface {
	Create(ctx context.Context, p *models.Profile) (*models.Profile, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRefreshMargin sets how long before expiry a token is refreshed.
func WithRefreshMargin(d time.Duration) Option {
	return func(m *Manager) { m.margin = d }
}

// Manager holds the current session, persists it in store and publishes
// identity changes to subscribers. It is safe for concurrent use.
type Manager struct {
	auth     platform.Auth
	store    credentials.Repository
	profiles ProfileCreator
	logger   logging.Logger
	margin   time.Duration

	// op serialises operations that replace the session.
	op sync.Mutex

	mu       sync.Mutex
	session  *platform.Session
	restored bool

	subMu   sync.Mutex
	subs    map[int]chan *models.Identity
	nextSub int
}

var _ platform.TokenSource = (*Manager)(nil)

// New returns a Manager with no identity. The persisted session is restored
// lazily by the first call that needs it.
func New(auth platform.Auth, store credentials.Repository, opts ...Option) *Manager {
	m := &Manager{
		auth:   auth,
		store:  store,
		logger: logging.Nop(),
		margin: defaultRefreshMargin,
		subs:   map[int]chan *models.Identity{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetProfileCreator wires the profile writer used by SignUp. It is set after
// construction because the writer itself authenticates through the Manager.
func (m *Manager) SetProfileCreator(p ProfileCreator) {
	m.op.Lock()
	defer m.op.Unlock()
	m.profiles = p
}

// CurrentIdentity returns the signed-in identity or nil.
func (m *Manager) CurrentIdentity(ctx context.Context) *models.Identity {
	m.restore(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	return identityOf(m.session)
}

// SignIn authenticates with email and password. A rejected credential comes
// back as *common.AuthenticationError carrying the platform's message.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*models.Identity, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	m.op.Lock()
	defer m.op.Unlock()

	s, err := m.auth.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, remote(err)
	}
	m.activate(ctx, s, true)
	m.logger.Info(ctx, "signed in", "user", s.User.ID)
	return identityOf(s), nil
}

// SignUp creates an account and writes its profile row. When the platform
// returns a session it becomes active first. A failed profile write is logged
// and does not fail the sign-up. The identity is nil when the platform asks
// for email confirmation first; the profile write is still attempted, without
// a token.
func (m *Manager) SignUp(ctx context.Context, email, password, displayName string) (*models.Identity, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)

	s, profiles, err := m.signUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !s.Active() {
		m.logger.Info(ctx, "account created, email confirmation pending", "email", email)
	}

	username := strings.TrimSpace(displayName)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	if profiles != nil && s.User.ID != "" {
		_, err := profiles.Create(ctx, &models.Profile{ID: s.User.ID, Username: username, Email: email})
		if err != nil {
			m.logger.Error(ctx, "profile creation failed", "user", s.User.ID, "error", err)
		}
	}
	if !s.Active() {
		return nil, nil
	}
	return identityOf(s), nil
}

func (m *Manager) signUp(ctx context.Context, email, password string) (*platform.Session, ProfileCreator, error) {
	m.op.Lock()
	defer m.op.Unlock()

	s, err := m.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, nil, remote(err)
	}
	if s == nil {
		return nil, nil, &common.RemoteError{Message: "empty sign-up response"}
	}
	if s.Active() {
		m.activate(ctx, s, true)
		m.logger.Info(ctx, "signed up", "user", s.User.ID)
	}
	return s, m.profiles, nil
}

// SignOut drops the session locally. A failed remote sign-out is logged.
func (m *Manager) SignOut(ctx context.Context) {
	m.op.Lock()
	defer m.op.Unlock()

	m.mu.Lock()
	s := m.session
	m.restored = true
	m.mu.Unlock()

	if s != nil && s.AccessToken != "" {
		if err := m.auth.SignOut(ctx, s.AccessToken); err != nil {
			m.logger.Warn(ctx, "remote sign-out failed", "error", err)
		}
	}
	m.drop(ctx)
}

// Subscribe returns a channel holding the latest identity (nil after sign
// out). Only the most recent value is kept. The returned func unsubscribes
// and closes the channel.
func (m *Manager) Subscribe() (<-chan *models.Identity, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan *models.Identity, 1)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			defer m.subMu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// AccessToken returns the bearer token of the signed-in user, refreshing it
// when it is about to expire, or "" when nobody is signed in.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.restore(ctx)

	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if s == nil {
		return "", nil
	}
	if !m.expiring(s) {
		return s.AccessToken, nil
	}

	next, err := m.refresh(ctx)
	if err != nil {
		// the old token may still be valid for a moment; the platform decides
		m.logger.Warn(ctx, "token refresh failed", "error", err)
		return s.AccessToken, nil
	}
	if next == nil {
		return "", nil
	}
	return next.AccessToken, nil
}

// Watch refreshes the token ahead of expiry until ctx ends. A refresh the
// platform rejects signs the user out and is published like a local sign
// out. Transient failures are retried with backoff.
func (m *Manager) Watch(ctx context.Context) error {
	changes, unsubscribe := m.Subscribe()
	defer unsubscribe()

	m.restore(ctx)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute

	for {
		var wake <-chan time.Time
		var timer *time.Timer
		if exp, ok := m.expiry(); ok {
			timer = time.NewTimer(max(time.Until(exp.Add(-m.margin)), 0))
			wake = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return nil
		case <-changes:
			stopTimer(timer)
			bo.Reset()
			continue
		case <-wake:
		}

		if _, err := m.refresh(ctx); err != nil {
			delay := bo.NextBackOff()
			m.logger.Warn(ctx, "token refresh failed, retrying", "error", err, "in", delay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		bo.Reset()
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// restore loads the persisted session on first use.
func (m *Manager) restore(ctx context.Context) {
	m.mu.Lock()
	done := m.restored
	m.mu.Unlock()
	if done {
		return
	}

	m.op.Lock()
	defer m.op.Unlock()

	m.mu.Lock()
	if m.restored {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	s, err := m.store.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Warn(ctx, "cannot read persisted session", "error", err)
	}

	m.mu.Lock()
	m.restored = true
	m.mu.Unlock()

	if s == nil {
		return
	}
	if !m.expiring(s) {
		m.set(s, true)
		m.logger.Debug(ctx, "session restored", "user", s.User.ID)
		return
	}

	next, err := m.auth.Refresh(ctx, s.RefreshToken)
	if err != nil {
		m.logger.Info(ctx, "persisted session could not be refreshed", "error", err)
		if err := m.store.Clear(ctx); err != nil {
			m.logger.Warn(ctx, "cannot clear persisted session", "error", err)
		}
		return
	}
	m.activate(ctx, next, true)
}

// refresh exchanges the refresh token. It returns (nil, nil) when the
// platform rejected the token and the user was signed out.
func (m *Manager) refresh(ctx context.Context) (*platform.Session, error) {
	m.op.Lock()
	defer m.op.Unlock()

	m.mu.Lock()
	s := m.session
	m.mu.Unlock()

	if s == nil {
		return nil, nil
	}
	if !m.expiring(s) {
		return s, nil
	}

	next, err := m.auth.Refresh(ctx, s.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrUnauthenticated) {
			m.logger.Info(ctx, "session ended by the platform", "user", s.User.ID, "error", err)
			m.drop(ctx)
			return nil, nil
		}
		return nil, remote(err)
	}
	m.activate(ctx, next, false)
	return next, nil
}

// activate persists s and makes it current. Subscribers are told unless
// s is a refresh of the current user. Callers hold m.op.
func (m *Manager) activate(ctx context.Context, s *platform.Session, notify bool) {
	if err := m.store.Save(ctx, s); err != nil {
		m.logger.Warn(ctx, "cannot persist session", "error", err)
	}
	m.set(s, notify)
}

// drop forgets the session everywhere. Callers hold m.op.
func (m *Manager) drop(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn(ctx, "cannot clear persisted session", "error", err)
	}
	m.set(nil, true)
}

func (m *Manager) set(s *platform.Session, notify bool) {
	m.mu.Lock()
	m.session = s
	m.restored = true
	m.mu.Unlock()

	if notify {
		m.publish(identityOf(s))
	}
}

func (m *Manager) publish(id *models.Identity) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- id
	}
}

func (m *Manager) expiry() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return time.Time{}, false
	}
	exp := expiresAt(m.session)
	return exp, !exp.IsZero()
}

func (m *Manager) expiring(s *platform.Session) bool {
	exp := expiresAt(s)
	return !exp.IsZero() && time.Until(exp) <= m.margin
}

// expiresAt prefers the exp claim of the token over the reported expiry.
func expiresAt(s *platform.Session) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return s.ExpiresAt
}

func identityOf(s *platform.Session) *models.Identity {
	if s == nil {
		return nil
	}
	id := &models.Identity{ID: s.User.ID, Email: s.User.Email, ExpiresAt: expiresAt(s)}
	if id.ID == "" {
		var claims jwt.RegisteredClaims
		if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err == nil {
			id.ID = claims.Subject
		}
	}
	return id
}

func validateCredentials(email, password string) error {
	if err := common.Required("email", strings.TrimSpace(email)); err != nil {
		return err
	}
	return common.Required("password", password)
}

// remote passes taxonomy errors through and wraps anything else.
func remote(err error) error {
	var ae *common.AuthenticationError
	var re *common.RemoteError
	if errors.As(err, &ae) || errors.As(err, &re) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &common.RemoteError{Err: err}
}
