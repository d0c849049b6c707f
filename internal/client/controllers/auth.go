package controllers

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/vulnblog/internal/client/models"
	"github.com/dmitrijs2005/vulnblog/internal/logging"
)

// Auth backs the sign-in and sign-up forms.
type Auth struct {
	sessions Sessions
	logger   logging.Logger

	mu    sync.Mutex
	state State
	open  bool
}

func NewAuth(sessions Sessions, logger logging.Logger) *Auth {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Auth{sessions: sessions, logger: logger}
}

// Open shows the form with a clean state.
func (a *Auth) Open() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = true
	a.state = State{}
}

// IsOpen reports whether the form is shown. A successful sign-in closes it.
func (a *Auth) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

func (a *Auth) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SignIn authenticates and closes the form. A rejection is shown with the
// platform's own wording.
func (a *Auth) SignIn(ctx context.Context, email, password string) (*models.Identity, bool) {
	a.mu.Lock()
	a.state.begin()
	a.mu.Unlock()

	id, err := a.sessions.SignIn(ctx, email, password)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.logger.Debug(ctx, "sign-in rejected", "email", email, "error", err)
		return nil, a.state.fail(err, msgGeneric)
	}
	a.open = false
	return id, a.state.succeed("")
}

// SignUp creates the account and reports success with MsgSignedUp. The form
// stays open so the user can sign in.
func (a *Auth) SignUp(ctx context.Context, email, password, username string) (*models.Identity, bool) {
	a.mu.Lock()
	a.state.begin()
	a.mu.Unlock()

	id, err := a.sessions.SignUp(ctx, email, password, username)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.logger.Debug(ctx, "sign-up rejected", "email", email, "error", err)
		return nil, a.state.fail(err, msgGeneric)
	}
	return id, a.state.succeed(MsgSignedUp)
}

// SignOut drops the session. It cannot fail from the user's point of view.
func (a *Auth) SignOut(ctx context.Context) {
	a.sessions.SignOut(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = State{}
}
