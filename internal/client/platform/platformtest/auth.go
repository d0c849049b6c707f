package platformtest

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/common"
)

// Messages returned by the auth endpoints. Unknown email and wrong password
// differ on purpose.
const (
	MsgUnknownEmail      = "Email not registered"
	MsgInvalidLogin      = "Invalid login credentials"
	MsgAlreadyRegistered = "User already registered"
	MsgWeakPassword      = "Password should be at least 6 characters."
	MsgInvalidEmail      = "Unable to validate email address: invalid format"
	MsgNotConfirmed      = "Email not confirmed"
	MsgBadRefreshToken   = "Invalid Refresh Token: Refresh Token Not Found"
)

const minPasswordLen = 6

type account struct {
	id        string
	email     string
	hash      []byte
	confirmed bool
}

// Claims are the access token claims.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
}

func authErr(msg string) error {
	return &common.AuthenticationError{Message: msg}
}

func (p *Platform) SignUp(ctx context.Context, email, password string) (*platform.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(OpSignUp, ""); err != nil {
		return nil, err
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, authErr(MsgInvalidEmail)
	}
	if len(password) < minPasswordLen {
		return nil, authErr(MsgWeakPassword)
	}
	if _, ok := p.accounts[email]; ok {
		return nil, authErr(MsgAlreadyRegistered)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	a := &account{id: uuid.NewString(), email: email, hash: hash, confirmed: p.autoConfirm}
	p.accounts[email] = a

	if !a.confirmed {
		return &platform.Session{User: platform.User{ID: a.id, Email: a.email}}, nil
	}
	return p.issue(a)
}

func (p *Platform) SignIn(ctx context.Context, email, password string) (*platform.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(OpSignIn, ""); err != nil {
		return nil, err
	}
	a, ok := p.accounts[email]
	if !ok {
		return nil, authErr(MsgUnknownEmail)
	}
	if bcrypt.CompareHashAndPassword(a.hash, []byte(password)) != nil {
		return nil, authErr(MsgInvalidLogin)
	}
	if !a.confirmed {
		return nil, authErr(MsgNotConfirmed)
	}
	return p.issue(a)
}

// SignOut revokes every refresh token of the token's owner.
func (p *Platform) SignOut(ctx context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(OpSignOut, ""); err != nil {
		return err
	}
	uid, err := p.verify(accessToken)
	if err != nil {
		return err
	}
	p.revokeLocked(uid)
	return nil
}

// Refresh rotates a refresh token.
func (p *Platform) Refresh(ctx context.Context, refreshToken string) (*platform.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(OpRefresh, ""); err != nil {
		return nil, err
	}
	uid, ok := p.refresh[refreshToken]
	if !ok {
		return nil, authErr(MsgBadRefreshToken)
	}
	delete(p.refresh, refreshToken)

	for _, a := range p.accounts {
		if a.id == uid {
			return p.issue(a)
		}
	}
	return nil, authErr(MsgBadRefreshToken)
}

// ConfirmEmail marks an address as confirmed.
func (p *Platform) ConfirmEmail(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.accounts[email]; ok {
		a.confirmed = true
	}
}

// RevokeSessions invalidates every refresh token of the account, as an
// administrator signing the user out would.
func (p *Platform) RevokeSessions(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.accounts[email]; ok {
		p.revokeLocked(a.id)
	}
}

// UserID returns the account id for email, or "".
func (p *Platform) UserID(email string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.accounts[email]; ok {
		return a.id
	}
	return ""
}

// Token issues a fresh access token for email without going through SignIn.
func (p *Platform) Token(email string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.accounts[email]
	if !ok {
		return ""
	}
	s, err := p.issue(a)
	if err != nil {
		return ""
	}
	return s.AccessToken
}

func (p *Platform) revokeLocked(uid string) {
	for tok, owner := range p.refresh {
		if owner == uid {
			delete(p.refresh, tok)
		}
	}
}

func (p *Platform) issue(a *account) (*platform.Session, error) {
	exp := time.Now().Add(p.tokenTTL).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.id,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.NewString(),
		},
		Email: a.email,
		Role:  "authenticated",
	})
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return nil, err
	}

	rt := uuid.NewString()
	p.refresh[rt] = a.id

	return &platform.Session{
		AccessToken:  signed,
		RefreshToken: rt,
		ExpiresAt:    exp,
		User:         platform.User{ID: a.id, Email: a.email},
	}, nil
}

// verify returns the subject of a valid token, "" for an empty one.
func (p *Platform) verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", nil
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", &common.RemoteError{Status: 401, Code: "PGRST301", Message: "JWT expired"}
		}
		return "", &common.RemoteError{Status: 401, Code: "PGRST301", Message: "JWT invalid", Err: err}
	}
	return claims.Subject, nil
}
