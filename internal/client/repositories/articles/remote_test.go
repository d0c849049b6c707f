package articles

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vulnblog/internal/client/models"
	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/client/platform/platformtest"
	"github.com/dmitrijs2005/vulnblog/internal/common"
)

type user struct {
	id   string
	repo *RemoteRepository
}

func newUser(t *testing.T, p *platformtest.Platform, email, username string) user {
	t.Helper()
	ctx := context.Background()
	s, err := p.SignUp(ctx, email, "secret1")
	require.NoError(t, err)

	conn := p.Connect(platform.TokenFunc(func(context.Context) (string, error) { return s.AccessToken, nil }))
	if username != "" {
		require.NoError(t, conn.Insert(ctx, platform.TableProfiles,
			map[string]any{"id": s.User.ID, "username": username, "email": email}, nil))
	}
	return user{id: s.User.ID, repo: NewRemoteRepository(conn)}
}

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func TestCreateThenGet_RoundTrip(t *testing.T) {
	p := platformtest.New()
	u1 := newUser(t, p, "u1@x.com", "alice")
	ctx := context.Background()

	created, err := u1.repo.Create(ctx, u1.id, "T", "B", true)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := u1.repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
	assert.Equal(t, "B", got.Body)
	assert.True(t, got.Published)
	assert.Equal(t, u1.id, got.AuthorID)
	assert.Equal(t, "alice", got.AuthorName())
}

func TestList_PublishedOnlyAndDraftsSuperset(t *testing.T) {
	p := platformtest.New()
	u1 := newUser(t, p, "u1@x.com", "alice")
	u2 := newUser(t, p, "u2@x.com", "bob")
	ctx := context.Background()

	_, err := u1.repo.Create(ctx, u1.id, "pub-1", "b", true)
	require.NoError(t, err)
	draft, err := u1.repo.Create(ctx, u1.id, "draft-1", "b", false)
	require.NoError(t, err)
	_, err = u2.repo.Create(ctx, u2.id, "pub-2", "b", true)
	require.NoError(t, err)

	published, err := u1.repo.List(ctx, models.ArticleFilter{})
	require.NoError(t, err)
	require.Len(t, published, 2)
	for _, a := range published {
		assert.True(t, a.Published)
	}
	assert.Equal(t, "pub-2", published[0].Title, "newest first")

	all, err := u1.repo.List(ctx, models.ArticleFilter{IncludeDrafts: true})
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, a := range all {
		ids[a.ID] = true
	}
	for _, a := range published {
		assert.True(t, ids[a.ID], "drafts list must contain every published article")
	}
	assert.True(t, ids[draft.ID])
}

func TestDraftVisibility_OnlyAuthorSeesIt(t *testing.T) {
	p := platformtest.New()
	u1 := newUser(t, p, "u1@x.com", "alice")
	other := newUser(t, p, "u2@x.com", "bob")
	ctx := context.Background()

	draft, err := u1.repo.Create(ctx, u1.id, "T", "B", false)
	require.NoError(t, err)

	visible, err := other.repo.List(ctx, models.ArticleFilter{})
	require.NoError(t, err)
	assert.Empty(t, visible)

	mine, err := u1.repo.List(ctx, models.ArticleFilter{IncludeDrafts: true})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, draft.ID, mine[0].ID)
}

func TestGet_NotFoundIsIndistinguishable(t *testing.T) {
	p := platformtest.New()
	u1 := newUser(t, p, "u1@x.com", "alice")
	other := newUser(t, p, "u2@x.com", "bob")
	ctx := context.Background()

	hidden, err := u1.repo.Create(ctx, u1.id, "secret draft", "B", false)
	require.NoError(t, err)

	_, errAbsent := other.repo.Get(ctx, uuid.NewString())
	_, errHidden := other.repo.Get(ctx, hidden.ID)
	_, errMalformed := other.repo.Get(ctx, "nonexistent-id")

	for _, err := range []error{errAbsent, errHidden, errMalformed} {
		require.ErrorIs(t, err, common.ErrNotFound)
		var nf *common.NotFoundError
		require.ErrorAs(t, err, &nf)
	}
	assert.Equal(t, errAbsent.Error(), errHidden.Error())
	assert.Equal(t, errAbsent.Error(), errMalformed.Error())
}

func TestList_MissingProfileRendersUnknownAuthor(t *testing.T) {
	p := platformtest.New()
	u := newUser(t, p, "u1@x.com", "")
	ctx := context.Background()

	_, err := u.repo.Create(ctx, u.id, "T", "B", true)
	require.NoError(t, err)

	list, err := u.repo.List(ctx, models.ArticleFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Author)
	assert.Equal(t, models.UnknownAuthor, list[0].AuthorName())
}

func TestCreate_ValidatesBeforeNetwork(t *testing.T) {
	p := platformtest.New()
	u := newUser(t, p, "u1@x.com", "alice")
	ctx := context.Background()

	_, err := u.repo.Create(ctx, u.id, "   ", "B", true)
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, "title: is required", err.Error())

	_, err = u.repo.Create(ctx, u.id, "T", "\n\t", true)
	require.ErrorIs(t, err, common.ErrValidation)

	assert.Zero(t, p.Calls(platformtest.OpInsert, platform.TableArticles))
}

func TestCreate_ForeignAuthorRejectedRemotely(t *testing.T) {
	p := platformtest.New()
	u1 := newUser(t, p, "u1@x.com", "alice")
	u2 := newUser(t, p, "u2@x.com", "bob")

	_, err := u2.repo.Create(context.Background(), u1.id, "T", "B", true)
	var re *common.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "42501", re.Code)
	assert.Equal(t, 1, p.Calls(platformtest.OpInsert, platform.TableArticles), "the client attempts the write")
}

func TestUpdate(t *testing.T) {
	p := platformtest.New()
	u1 := newUser(t, p, "u1@x.com", "alice")
	u2 := newUser(t, p, "u2@x.com", "bob")
	ctx := context.Background()

	a, err := u1.repo.Create(ctx, u1.id, "T", "B", false)
	require.NoError(t, err)

	updated, err := u1.repo.Update(ctx, a.ID, models.ArticlePatch{Title: strp("T2"), Published: boolp(true)})
	require.NoError(t, err)
	assert.Equal(t, "T2", updated.Title)
	assert.Equal(t, "B", updated.Body)
	assert.True(t, updated.Published)
	assert.Equal(t, u1.id, updated.AuthorID)

	_, err = u2.repo.Update(ctx, a.ID, models.ArticlePatch{Title: strp("hijack")})
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, 1+1, p.Calls(platformtest.OpUpdate, platform.TableArticles))

	_, err = u1.repo.Update(ctx, a.ID, models.ArticlePatch{})
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = u1.repo.Update(ctx, a.ID, models.ArticlePatch{Body: strp("  ")})
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = u1.repo.Update(ctx, "garbage", models.ArticlePatch{Title: strp("x")})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestDelete_SilentWhenNothingMatches(t *testing.T) {
	p := platformtest.New()
	u1 := newUser(t, p, "u1@x.com", "alice")
	u2 := newUser(t, p, "u2@x.com", "bob")
	ctx := context.Background()

	a, err := u1.repo.Create(ctx, u1.id, "T", "B", true)
	require.NoError(t, err)

	require.NoError(t, u2.repo.Delete(ctx, a.ID))
	_, err = u1.repo.Get(ctx, a.ID)
	require.NoError(t, err, "foreign delete is filtered by the platform")

	require.NoError(t, u1.repo.Delete(ctx, a.ID))
	_, err = u1.repo.Get(ctx, a.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, u1.repo.Delete(ctx, uuid.NewString()))
}

func TestList_RemoteErrorPassesThrough(t *testing.T) {
	p := platformtest.New()
	u := newUser(t, p, "u1@x.com", "alice")
	boom := &common.RemoteError{Status: 503, Message: "unavailable"}
	p.FailNext(platformtest.OpSelect, platform.TableArticles, boom)

	_, err := u.repo.List(context.Background(), models.ArticleFilter{})
	require.True(t, errors.Is(err, boom))
}

func TestQuery_Shape(t *testing.T) {
	q := Query(models.ArticleFilter{})
	assert.Equal(t, platform.TableArticles, q.Table)
	assert.Equal(t, []platform.Filter{platform.Eq("published", true)}, q.Filters)
	require.NotNil(t, q.Order)
	assert.True(t, q.Order.Descending)

	assert.Empty(t, Query(models.ArticleFilter{IncludeDrafts: true}).Filters)
}
