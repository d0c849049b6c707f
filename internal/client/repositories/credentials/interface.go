// Package credentials persists the platform session between runs so a
// restarted client resumes as the same user.
package credentials

import (
	"context"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
)

// Repository stores at most one session.
//
// Load returns (nil, nil) when nothing is stored.
type Repository interface {
	Save(ctx context.Context, s *platform.Session) error
	Load(ctx context.Context) (*platform.Session, error)
	Clear(ctx context.Context) error
}
