package controllers

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/vulnblog/internal/client/models"
	"github.com/dmitrijs2005/vulnblog/internal/client/repositories/profiles"
	"github.com/dmitrijs2005/vulnblog/internal/logging"
)

// ProfileForm holds the editable fields of a profile.
type ProfileForm struct {
	Username  string
	AvatarURL string
}

func profileFormOf(p *models.Profile) ProfileForm {
	return ProfileForm{Username: p.Username, AvatarURL: p.Avatar()}
}

// Profile backs the profile editor of one account.
type Profile struct {
	repo   profiles.Repository
	userID string
	logger logging.Logger

	mu      sync.Mutex
	state   State
	profile *models.Profile
	form    ProfileForm
}

func NewProfile(repo profiles.Repository, userID string, logger logging.Logger) *Profile {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Profile{repo: repo, userID: userID, logger: logger}
}

// Load fetches the profile and resets the form to its values.
func (c *Profile) Load(ctx context.Context) bool {
	c.mu.Lock()
	c.state.begin()
	c.mu.Unlock()

	p, err := c.repo.Get(ctx, c.userID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Debug(ctx, "load profile failed", "user", c.userID, "error", err)
		return c.state.fail(err, msgLoadProfile)
	}
	c.profile = p
	c.form = profileFormOf(p)
	return c.state.succeed("")
}

func (c *Profile) Profile() *models.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

func (c *Profile) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Profile) Form() ProfileForm {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.form
}

func (c *Profile) SetForm(f ProfileForm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form = f
}

// Cancel restores the loaded values.
func (c *Profile) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.profile != nil {
		c.form = profileFormOf(c.profile)
	}
}

// Save writes username and avatar URL, then reloads. An empty avatar URL
// clears the avatar.
func (c *Profile) Save(ctx context.Context) bool {
	c.mu.Lock()
	f := c.form
	c.state.begin()
	c.mu.Unlock()

	_, err := c.repo.Update(ctx, c.userID, models.ProfilePatch{
		Username:  &f.Username,
		AvatarURL: &f.AvatarURL,
	})
	if err != nil {
		c.logger.Debug(ctx, "save profile failed", "user", c.userID, "error", err)
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.state.fail(err, msgSave)
	}
	return c.Load(ctx)
}

// UploadAvatar stores the file and puts its public URL in the form. The
// profile itself changes on the next Save.
func (c *Profile) UploadAvatar(ctx context.Context, data []byte, fileName string) bool {
	c.mu.Lock()
	c.state.begin()
	c.mu.Unlock()

	url, err := c.repo.UploadAvatar(ctx, c.userID, data, fileName)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.logger.Debug(ctx, "avatar upload failed", "user", c.userID, "error", err)
		return c.state.fail(err, msgUpload)
	}
	c.form.AvatarURL = url
	return c.state.succeed("")
}
