package models

import "time"

// UnknownAuthor is displayed when an article's author has no profile.
const UnknownAuthor = "Utilisateur inconnu"

// Author is the profile summary embedded into an article.
type Author struct {
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url"`
}

// Article is a blog post. AuthorID never changes after creation.
type Article struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"content"`
	AuthorID  string    `json:"author_id"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`

	// Author is nil when the join found no profile.
	Author *Author `json:"profiles,omitempty"`
}

// AuthorName returns the author's username or UnknownAuthor.
func (a *Article) AuthorName() string {
	if a.Author == nil || a.Author.Username == "" {
		return UnknownAuthor
	}
	return a.Author.Username
}

// ShortID is the first eight characters of the id, as shown in lists.
func (a *Article) ShortID() string {
	if len(a.ID) <= 8 {
		return a.ID
	}
	return a.ID[:8]
}

// IsOwnedBy reports whether the article belongs to the identity. It only
// drives what the UI shows; the platform enforces ownership.
func (a *Article) IsOwnedBy(id *Identity) bool {
	return id != nil && a.AuthorID == id.ID
}

// ArticleFilter selects which articles List returns.
type ArticleFilter struct {
	// IncludeDrafts returns every article visible to the caller instead of
	// only published ones.
	IncludeDrafts bool
}

// ArticlePatch is a partial article update. Nil fields are left untouched.
type ArticlePatch struct {
	Title     *string
	Body      *string
	Published *bool
}

// Empty reports whether the patch changes nothing.
func (p ArticlePatch) Empty() bool {
	return p.Title == nil && p.Body == nil && p.Published == nil
}

// Record converts the patch to the column map sent to the platform.
func (p ArticlePatch) Record() map[string]any {
	rec := map[string]any{}
	if p.Title != nil {
		rec["title"] = *p.Title
	}
	if p.Body != nil {
		rec["content"] = *p.Body
	}
	if p.Published != nil {
		rec["published"] = *p.Published
	}
	return rec
}
