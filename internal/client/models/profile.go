package models

import "time"

// Profile is the public-facing record of an account. It is readable by
// anyone, email included.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	AvatarURL *string   `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Avatar returns the avatar URL or an empty string.
func (p *Profile) Avatar() string {
	if p == nil || p.AvatarURL == nil {
		return ""
	}
	return *p.AvatarURL
}

// ProfilePatch is a partial profile update. Nil fields are left untouched.
// An empty AvatarURL clears the avatar.
type ProfilePatch struct {
	Username  *string
	AvatarURL *string
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Username == nil && p.AvatarURL == nil
}

// Record converts the patch to the column map sent to the platform.
func (p ProfilePatch) Record() map[string]any {
	rec := map[string]any{}
	if p.Username != nil {
		rec["username"] = *p.Username
	}
	if p.AvatarURL != nil {
		if *p.AvatarURL == "" {
			rec["avatar_url"] = nil
		} else {
			rec["avatar_url"] = *p.AvatarURL
		}
	}
	return rec
}
