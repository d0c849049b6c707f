// Package supabase implements the platform capabilities against a
// Supabase-compatible service: GoTrue for accounts, PostgREST for tables,
// the S3-compatible storage endpoint for blobs and the Phoenix realtime
// socket for change feeds.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/common"
	"github.com/dmitrijs2005/vulnblog/internal/logging"
)

const defaultHeartbeat = 25 * time.Second

// Options configures a Client.
type Options struct {
	// URL is the project URL, e.g. https://abcd.supabase.co.
	URL string
	// APIKey is the public anon key.
	APIKey string

	HTTPClient *http.Client
	Logger     logging.Logger

	// S3Region is the region of the storage endpoint.
	S3Region string
	// S3AccessKeyID and S3SecretAccessKey are project S3 access keys. When
	// both are set uploads are signed with them instead of the caller's
	// session token.
	S3AccessKeyID     string
	S3SecretAccessKey string
	// Heartbeat is the realtime heartbeat period.
	Heartbeat time.Duration
}

// Client talks to one project. The zero token source is anonymous; use
// WithTokens to act as a signed-in user.
type Client struct {
	base      *url.URL
	apiKey    string
	http      *http.Client
	logger    logging.Logger
	tokens    platform.TokenSource
	region    string
	s3Keys    [2]string
	heartbeat time.Duration

	s3 *s3Lazy
}

var (
	_ platform.Auth    = (*Client)(nil)
	_ platform.Tables  = (*Client)(nil)
	_ platform.Blobs   = (*Client)(nil)
	_ platform.Changes = (*Client)(nil)
)

// New validates the options and returns an anonymous client.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("supabase: URL is required")
	}
	if opts.APIKey == "" {
		return nil, errors.New("supabase: API key is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("supabase: parse URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("supabase: unsupported URL scheme %q", base.Scheme)
	}

	c := &Client{
		base:      base,
		apiKey:    opts.APIKey,
		http:      opts.HTTPClient,
		logger:    opts.Logger,
		tokens:    platform.Anonymous,
		region:    opts.S3Region,
		s3Keys:    [2]string{opts.S3AccessKeyID, opts.S3SecretAccessKey},
		heartbeat: opts.Heartbeat,
		s3:        &s3Lazy{},
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}
	if c.region == "" {
		c.region = "us-east-1"
	}
	if c.heartbeat <= 0 {
		c.heartbeat = defaultHeartbeat
	}
	return c, nil
}

// WithTokens returns a copy of the client that authenticates table, storage
// and realtime calls with the tokens' bearer token.
func (c *Client) WithTokens(ts platform.TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	cp.s3 = &s3Lazy{}
	return &cp
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// bearer is the caller's token, or the anon key for anonymous calls.
func (c *Client) bearer(ctx context.Context) (string, error) {
	tok, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	if tok == "" {
		return c.apiKey, nil
	}
	return tok, nil
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	bearer  string
	headers map[string]string
	auth    bool
}

// do sends r and decodes a successful JSON response into dest.
func (c *Client) do(ctx context.Context, r request, dest any) error {
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &common.RemoteError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &common.RemoteError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 300 {
		err := mapStatus(resp.StatusCode, raw, r.auth)
		c.logger.Debug(ctx, "platform call failed", "method", r.method, "path", r.path, "status", resp.StatusCode, "error", err)
		return err
	}
	if dest == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &common.RemoteError{Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}
