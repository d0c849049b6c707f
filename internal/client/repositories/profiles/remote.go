package profiles

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/dmitrijs2005/vulnblog/internal/client/models"
	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/common"
)

// RemoteRepository implements Repository over the platform tables and blob
// storage.
type RemoteRepository struct {
	tables platform.Tables
	blobs  platform.Blobs
	now    func() time.Time
}

// NewRemoteRepository returns a repository that reads and writes profiles
// through tables and uploads avatars to blobs.
func NewRemoteRepository(tables platform.Tables, blobs platform.Blobs) *RemoteRepository {
	return &RemoteRepository{tables: tables, blobs: blobs, now: time.Now}
}

func (r *RemoteRepository) Get(ctx context.Context, id string) (*models.Profile, error) {
	if err := common.Required("id", strings.TrimSpace(id)); err != nil {
		return nil, err
	}

	var out []models.Profile
	err := r.tables.Select(ctx, platform.Query{
		Table:   platform.TableProfiles,
		Filters: []platform.Filter{platform.Eq("id", id)},
	}, &out)
	if err != nil {
		if isMalformedID(err) {
			return nil, notFound()
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, notFound()
	}
	return &out[0], nil
}

// Create inserts the profile of a new account.
func (r *RemoteRepository) Create(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	if err := common.Required("id", strings.TrimSpace(p.ID)); err != nil {
		return nil, err
	}
	if err := common.Required("username", strings.TrimSpace(p.Username)); err != nil {
		return nil, err
	}

	record := map[string]any{
		"id":       p.ID,
		"username": p.Username,
		"email":    p.Email,
	}
	if p.AvatarURL != nil && *p.AvatarURL != "" {
		record["avatar_url"] = *p.AvatarURL
	}

	var out []models.Profile
	if err := r.tables.Insert(ctx, platform.TableProfiles, record, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &common.RemoteError{Message: "profile created but not returned"}
	}
	return &out[0], nil
}

// Update applies patch to any profile id; the platform decides whether the
// caller may. An empty avatar clears it.
func (r *RemoteRepository) Update(ctx context.Context, id string, patch models.ProfilePatch) (*models.Profile, error) {
	if err := common.Required("id", strings.TrimSpace(id)); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return nil, &common.ValidationError{Message: "nothing to update"}
	}
	if patch.Username != nil {
		if err := common.Required("username", strings.TrimSpace(*patch.Username)); err != nil {
			return nil, err
		}
	}

	var out []models.Profile
	err := r.tables.Update(ctx, platform.TableProfiles, []platform.Filter{platform.Eq("id", id)}, patch.Record(), &out)
	if err != nil {
		if isMalformedID(err) {
			return nil, notFound()
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, notFound()
	}
	return &out[0], nil
}

// UploadAvatar stores data in the public avatars bucket as
// {id}-{unix millis}.{ext} and returns its public URL. Anyone who can guess
// the name can fetch the file.
func (r *RemoteRepository) UploadAvatar(ctx context.Context, id string, data []byte, fileName string) (string, error) {
	if err := common.Required("id", strings.TrimSpace(id)); err != nil {
		return "", err
	}
	if err := common.Required("file", strings.TrimSpace(fileName)); err != nil {
		return "", err
	}

	ext := Extension(fileName)
	path := fmt.Sprintf("%s-%d.%s", id, r.now().UnixMilli(), ext)

	stored, err := r.blobs.Upload(ctx, platform.AvatarBucket, path, data, mime.TypeByExtension("."+ext))
	if err != nil {
		return "", err
	}
	return r.blobs.PublicURL(platform.AvatarBucket, stored), nil
}

// Extension is the text after the last dot of name, or name itself when it
// has no dot.
func Extension(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

func notFound() error {
	return &common.NotFoundError{Entity: "profile"}
}

func isMalformedID(err error) bool {
	var re *common.RemoteError
	return errors.As(err, &re) && re.Code == "22P02"
}
