package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/common"
)

func TestSelect_BuildsPostgRESTQuery(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/articles", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "*,profiles(username,avatar_url)", q.Get("select"))
		assert.Equal(t, "eq.true", q.Get("published"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "Bearer user-jwt", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[{"id":"a1","title":"T","profiles":{"username":"alice","avatar_url":null}}]`)
	}))
	c = c.WithTokens(userTokens("user-jwt"))

	var rows []map[string]any
	err := c.Select(context.Background(), platform.Query{
		Table:   "articles",
		Embeds:  []platform.Embed{{Table: "profiles", ForeignKey: "author_id", Columns: []string{"username", "avatar_url"}}},
		Filters: []platform.Filter{platform.Eq("published", true)},
		Order:   &platform.Order{Column: "created_at", Descending: true},
	}, &rows)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a1", rows[0]["id"])
}

func TestSelect_AnonymousUsesAnonKeyAsBearer(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+testKey, r.Header.Get("Authorization"))
		assert.Equal(t, "*", r.URL.Query().Get("select"))
		_, _ = io.WriteString(w, `[]`)
	}))
	var rows []map[string]any
	require.NoError(t, c.Select(context.Background(), platform.Query{Table: "profiles"}, &rows))
	assert.Empty(t, rows)
}

func TestSelect_PostgRESTErrorKeepsCode(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"22P02","details":null,"hint":null,"message":"invalid input syntax for type uuid: \"x\""}`)
	}))
	err := c.Select(context.Background(), platform.Query{Table: "articles", Filters: []platform.Filter{platform.Eq("id", "x")}}, &[]map[string]any{})

	var re *common.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "22P02", re.Code)
	assert.Equal(t, http.StatusBadRequest, re.Status)
	assert.NotErrorIs(t, err, common.ErrUnauthenticated)
}

func TestInsertUpdateDelete_Requests(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method)
		mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "T", body["title"])
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `[{"id":"a1","title":"T"}]`)
		case http.MethodPatch:
			assert.Equal(t, "eq.a1", r.URL.Query().Get("id"))
			assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
			_, _ = io.WriteString(w, `[]`)
		case http.MethodDelete:
			assert.Equal(t, "eq.a1", r.URL.Query().Get("id"))
			assert.Equal(t, "return=minimal", r.Header.Get("Prefer"))
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	ctx := context.Background()

	var created []map[string]any
	require.NoError(t, c.Insert(ctx, "articles", map[string]any{"title": "T"}, &created))
	require.Len(t, created, 1)

	var updated []map[string]any
	require.NoError(t, c.Update(ctx, "articles", []platform.Filter{platform.Eq("id", "a1")}, map[string]any{"title": "U"}, &updated))
	assert.Empty(t, updated)

	require.NoError(t, c.Delete(ctx, "articles", []platform.Filter{platform.Eq("id", "a1")}))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{http.MethodPost, http.MethodPatch, http.MethodDelete}, seen)
}

func TestMapStatus(t *testing.T) {
	err := mapStatus(http.StatusUnprocessableEntity, []byte(`{"code":422,"error_code":"weak_password","msg":"Password should be at least 6 characters."}`), true)
	require.ErrorIs(t, err, common.ErrUnauthenticated)
	assert.Equal(t, "Password should be at least 6 characters.", err.Error())

	err = mapStatus(http.StatusTooManyRequests, []byte(`{"msg":"rate limited"}`), true)
	var re *common.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusTooManyRequests, re.Status)

	err = mapStatus(http.StatusForbidden, []byte(`{"code":"42501","message":"new row violates row-level security policy"}`), false)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "42501", re.Code)
}
