package supabase

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         platform.User `json:"user"`
}

func (t *tokenResponse) session() *platform.Session {
	if t.AccessToken == "" {
		return nil
	}
	s := &platform.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		User:         t.User,
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	case t.ExpiresIn > 0:
		s.ExpiresAt = time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return s
}

func (c *Client) token(ctx context.Context, grant string, body any) (*platform.Session, error) {
	var tr tokenResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grant}},
		body:   body,
		bearer: c.apiKey,
		auth:   true,
	}, &tr)
	if err != nil {
		return nil, err
	}
	return tr.session(), nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*platform.Session, error) {
	return c.token(ctx, "password", credentials{Email: email, Password: password})
}

// signUpResponse is either a token response or, when the project requires
// email confirmation, the bare user object.
type signUpResponse struct {
	tokenResponse
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignUp returns a session without tokens when the project requires email
// confirmation.
func (c *Client) SignUp(ctx context.Context, email, password string) (*platform.Session, error) {
	var tr signUpResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   credentials{Email: email, Password: password},
		bearer: c.apiKey,
		auth:   true,
	}, &tr)
	if err != nil {
		return nil, err
	}
	if s := tr.session(); s != nil {
		return s, nil
	}
	u := tr.User
	if u.ID == "" {
		u = platform.User{ID: tr.ID, Email: tr.Email}
	}
	return &platform.Session{User: u}, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		bearer: accessToken,
	}, nil)
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*platform.Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}
