// Package models defines client-side data models used by the VulnBlog CLI.
package models

import "time"

// Identity is the authenticated principal of the running client.
type Identity struct {
	// ID is the platform account identifier (a uuid).
	ID string

	// Email the account was registered with.
	Email string

	// ExpiresAt is the expiry of the current access token.
	ExpiresAt time.Time
}
