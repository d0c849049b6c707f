package platformtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/common"
)

type articleRow struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	AuthorID  string `json:"author_id"`
	Published bool   `json:"published"`
	Profiles  *struct {
		Username string `json:"username"`
	} `json:"profiles"`
}

func signUp(t *testing.T, p *Platform, email string) *platform.Session {
	t.Helper()
	s, err := p.SignUp(context.Background(), email, "secret1")
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func as(p *Platform, s *platform.Session) *Conn {
	return p.Connect(platform.TokenFunc(func(context.Context) (string, error) { return s.AccessToken, nil }))
}

func TestAuth_DistinctMessages(t *testing.T) {
	p := New()
	ctx := context.Background()
	signUp(t, p, "a@x.com")

	_, err := p.SignIn(ctx, "nobody@x.com", "secret1")
	var ae *common.AuthenticationError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, MsgUnknownEmail, ae.Message)

	_, err = p.SignIn(ctx, "a@x.com", "wrong-pass")
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, MsgInvalidLogin, ae.Message)

	_, err = p.SignUp(ctx, "a@x.com", "secret1")
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, MsgAlreadyRegistered, ae.Message)

	_, err = p.SignUp(ctx, "b@x.com", "123")
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, MsgWeakPassword, ae.Message)
}

func TestAuth_RefreshRotatesAndSignOutRevokes(t *testing.T) {
	p := New()
	ctx := context.Background()
	s := signUp(t, p, "a@x.com")

	next, err := p.Refresh(ctx, s.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, next.User.ID)

	_, err = p.Refresh(ctx, s.RefreshToken)
	require.ErrorIs(t, err, common.ErrUnauthenticated, "old refresh token is single use")

	require.NoError(t, p.SignOut(ctx, next.AccessToken))
	_, err = p.Refresh(ctx, next.RefreshToken)
	require.Error(t, err)
}

func TestAuth_EmailConfirmation(t *testing.T) {
	p := New(WithEmailConfirmation())
	ctx := context.Background()

	s, err := p.SignUp(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.False(t, s.Active())
	assert.Equal(t, p.UserID("a@x.com"), s.User.ID)

	_, err = p.SignIn(ctx, "a@x.com", "secret1")
	require.EqualError(t, err, MsgNotConfirmed)

	p.ConfirmEmail("a@x.com")
	_, err = p.SignIn(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
}

func TestTables_RowLevelPolicies(t *testing.T) {
	p := New()
	ctx := context.Background()
	u1 := signUp(t, p, "u1@x.com")
	u2 := signUp(t, p, "u2@x.com")

	require.NoError(t, as(p, u1).Insert(ctx, platform.TableProfiles,
		map[string]any{"id": u1.User.ID, "username": "alice"}, nil))

	var created []articleRow
	require.NoError(t, as(p, u1).Insert(ctx, platform.TableArticles,
		map[string]any{"title": "T", "content": "B", "author_id": u1.User.ID}, &created))
	require.Len(t, created, 1)
	assert.False(t, created[0].Published)

	q := platform.Query{
		Table:  platform.TableArticles,
		Embeds: []platform.Embed{{Table: platform.TableProfiles, ForeignKey: "author_id", Columns: []string{"username"}}},
	}

	var seen []articleRow
	require.NoError(t, as(p, u2).Select(ctx, q, &seen))
	assert.Empty(t, seen, "drafts are hidden from others")

	require.NoError(t, as(p, u1).Select(ctx, q, &seen))
	require.Len(t, seen, 1)
	require.NotNil(t, seen[0].Profiles)
	assert.Equal(t, "alice", seen[0].Profiles.Username)

	// foreign insert is rejected, foreign update and delete are filtered
	err := as(p, u2).Insert(ctx, platform.TableArticles,
		map[string]any{"title": "T", "content": "B", "author_id": u1.User.ID}, nil)
	var re *common.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "42501", re.Code)

	var updated []articleRow
	require.NoError(t, as(p, u2).Update(ctx, platform.TableArticles,
		[]platform.Filter{platform.Eq("id", created[0].ID)}, map[string]any{"title": "X"}, &updated))
	assert.Empty(t, updated)

	require.NoError(t, as(p, u2).Delete(ctx, platform.TableArticles, []platform.Filter{platform.Eq("id", created[0].ID)}))
	assert.Len(t, p.Rows(platform.TableArticles), 1)
}

func TestTables_MalformedUUIDFilter(t *testing.T) {
	p := New()
	err := p.Connect(nil).Select(context.Background(), platform.Query{
		Table:   platform.TableArticles,
		Filters: []platform.Filter{platform.Eq("id", "nope")},
	}, &[]articleRow{})

	var re *common.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "22P02", re.Code)
}

func TestTables_ExpiredTokenRejected(t *testing.T) {
	p := New(WithTokenTTL(-time.Minute))
	s := signUp(t, p, "a@x.com")

	err := as(p, s).Select(context.Background(), platform.Query{Table: platform.TableArticles}, &[]articleRow{})
	var re *common.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 401, re.Status)
}

func TestFailNext_ConsumedOnce(t *testing.T) {
	p := New()
	boom := errors.New("boom")
	p.FailNext(OpSelect, platform.TableArticles, boom)

	conn := p.Connect(nil)
	q := platform.Query{Table: platform.TableArticles}
	require.ErrorIs(t, conn.Select(context.Background(), q, &[]articleRow{}), boom)
	require.NoError(t, conn.Select(context.Background(), q, &[]articleRow{}))
	assert.Equal(t, 2, p.Calls(OpSelect, platform.TableArticles))
}

func TestChanges_DeliversInOrderAndCloses(t *testing.T) {
	p := New()
	ctx := context.Background()
	s := signUp(t, p, "a@x.com")
	conn := as(p, s)

	sub, err := conn.Subscribe(ctx, platform.TableArticles)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Subscribers(platform.TableArticles))

	var created []articleRow
	require.NoError(t, conn.Insert(ctx, platform.TableArticles,
		map[string]any{"title": "T", "content": "B", "author_id": s.User.ID}, &created))
	require.NoError(t, conn.Update(ctx, platform.TableArticles,
		[]platform.Filter{platform.Eq("id", created[0].ID)}, map[string]any{"published": true}, nil))
	require.NoError(t, conn.Delete(ctx, platform.TableArticles, []platform.Filter{platform.Eq("id", created[0].ID)}))

	for _, want := range []platform.EventType{platform.EventInsert, platform.EventUpdate, platform.EventDelete} {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, want, ev.Type)
			assert.Equal(t, platform.TableArticles, ev.Table)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, p.Subscribers(platform.TableArticles))
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestBlobs_PublicURL(t *testing.T) {
	p := New(WithBaseURL("https://proj.supabase.co/"))
	s := signUp(t, p, "a@x.com")
	conn := as(p, s)

	path, err := conn.Upload(context.Background(), platform.AvatarBucket, "u-1.png", []byte{1, 2}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/public/avatars/u-1.png", conn.PublicURL(platform.AvatarBucket, path))

	data, ct, ok := p.Blob(platform.AvatarBucket, "u-1.png")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, data)
	assert.Equal(t, "image/png", ct)

	_, err = p.Connect(nil).Upload(context.Background(), platform.AvatarBucket, "anon.png", nil, "")
	require.Error(t, err)
}
