package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
)

func selectClause(q platform.Query) string {
	parts := []string{"*"}
	if len(q.Columns) > 0 {
		parts = append([]string(nil), q.Columns...)
	}
	for _, e := range q.Embeds {
		cols := "*"
		if len(e.Columns) > 0 {
			cols = strings.Join(e.Columns, ",")
		}
		parts = append(parts, fmt.Sprintf("%s(%s)", e.Table, cols))
	}
	return strings.Join(parts, ",")
}

func addFilters(v url.Values, filters []platform.Filter) url.Values {
	if v == nil {
		v = url.Values{}
	}
	for _, f := range filters {
		v.Add(f.Column, "eq."+fmt.Sprint(f.Value))
	}
	return v
}

func prefer(dest any) map[string]string {
	if dest == nil {
		return map[string]string{"Prefer": "return=minimal"}
	}
	return map[string]string{"Prefer": "return=representation"}
}

func (c *Client) Select(ctx context.Context, q platform.Query, dest any) error {
	bearer, err := c.bearer(ctx)
	if err != nil {
		return err
	}
	v := url.Values{"select": {selectClause(q)}}
	addFilters(v, q.Filters)
	if q.Order != nil {
		dir := "asc"
		if q.Order.Descending {
			dir = "desc"
		}
		v.Set("order", q.Order.Column+"."+dir)
	}
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/" + q.Table,
		query:  v,
		bearer: bearer,
	}, dest)
}

func (c *Client) Insert(ctx context.Context, table string, record any, dest any) error {
	bearer, err := c.bearer(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/rest/v1/" + table,
		body:    record,
		bearer:  bearer,
		headers: prefer(dest),
	}, dest)
}

func (c *Client) Update(ctx context.Context, table string, filters []platform.Filter, patch any, dest any) error {
	bearer, err := c.bearer(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		method:  http.MethodPatch,
		path:    "/rest/v1/" + table,
		query:   addFilters(nil, filters),
		body:    patch,
		bearer:  bearer,
		headers: prefer(dest),
	}, dest)
}

func (c *Client) Delete(ctx context.Context, table string, filters []platform.Filter) error {
	bearer, err := c.bearer(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, request{
		method:  http.MethodDelete,
		path:    "/rest/v1/" + table,
		query:   addFilters(nil, filters),
		bearer:  bearer,
		headers: prefer(nil),
	}, nil)
}
