// Package profiles gives typed access to the profiles table and the public
// avatars bucket.
package profiles

import (
	"context"

	"github.com/dmitrijs2005/vulnblog/internal/client/models"
)

type Repository interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
	Create(ctx context.Context, p *models.Profile) (*models.Profile, error)
	Update(ctx context.Context, id string, patch models.ProfilePatch) (*models.Profile, error)
	UploadAvatar(ctx context.Context, id string, data []byte, fileName string) (string, error)
}
