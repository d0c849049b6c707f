package platformtest

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/common"
)

type row map[string]any

type schema struct {
	columns  []string
	required []string
	uuids    []string
	defaults func(p *Platform, r row)

	canSelect func(r row, uid string) bool
	canInsert func(r row, uid string) bool
	canUpdate func(r row, uid string) bool
	canDelete func(r row, uid string) bool
}

var schemas = map[string]schema{
	platform.TableArticles: {
		columns:  []string{"id", "title", "content", "author_id", "published", "created_at"},
		required: []string{"title", "content", "author_id"},
		uuids:    []string{"id", "author_id"},
		defaults: func(p *Platform, r row) {
			if _, ok := r["id"]; !ok {
				r["id"] = uuid.NewString()
			}
			if _, ok := r["published"]; !ok {
				r["published"] = false
			}
			r["created_at"] = p.tick()
		},
		canSelect: func(r row, uid string) bool { return r["published"] == true || owns(r, "author_id", uid) },
		canInsert: func(r row, uid string) bool { return owns(r, "author_id", uid) },
		canUpdate: func(r row, uid string) bool { return owns(r, "author_id", uid) },
		canDelete: func(r row, uid string) bool { return owns(r, "author_id", uid) },
	},
	platform.TableProfiles: {
		columns:  []string{"id", "username", "email", "avatar_url", "created_at"},
		required: []string{"id", "username"},
		uuids:    []string{"id"},
		defaults: func(p *Platform, r row) {
			r["created_at"] = p.tick()
		},
		canSelect: func(r row, uid string) bool { return true },
		canInsert: func(r row, uid string) bool { return owns(r, "id", uid) },
		canUpdate: func(r row, uid string) bool { return owns(r, "id", uid) },
		canDelete: func(r row, uid string) bool { return false },
	},
}

func owns(r row, col, uid string) bool {
	return uid != "" && r[col] == uid
}

func rlsViolation(table string) error {
	return &common.RemoteError{
		Status:  403,
		Code:    "42501",
		Message: fmt.Sprintf("new row violates row-level security policy for table %q", table),
	}
}

func lookup(table string) (schema, error) {
	s, ok := schemas[table]
	if !ok {
		return schema{}, &common.RemoteError{
			Status:  404,
			Code:    "42P01",
			Message: fmt.Sprintf("relation \"public.%s\" does not exist", table),
		}
	}
	return s, nil
}

func (c *Conn) caller(ctx context.Context) (string, error) {
	tok, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	return c.p.verify(tok)
}

func (c *Conn) Select(ctx context.Context, q platform.Query, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uid, err := c.caller(ctx)
	if err != nil {
		return err
	}

	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(OpSelect, q.Table); err != nil {
		return err
	}
	s, err := lookup(q.Table)
	if err != nil {
		return err
	}
	if err := checkFilters(s, q.Filters); err != nil {
		return err
	}

	var out []row
	for _, r := range p.tables[q.Table] {
		if !s.canSelect(r, uid) || !matches(r, q.Filters) {
			continue
		}
		out = append(out, p.project(r, q, uid))
	}

	if q.Order != nil {
		col, desc := q.Order.Column, q.Order.Descending
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return less(out[j][col], out[i][col])
			}
			return less(out[i][col], out[j][col])
		})
	}
	return decode(out, dest)
}

func (c *Conn) Insert(ctx context.Context, table string, record any, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uid, err := c.caller(ctx)
	if err != nil {
		return err
	}
	r, err := toRow(record)
	if err != nil {
		return err
	}

	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(OpInsert, table); err != nil {
		return err
	}
	s, err := lookup(table)
	if err != nil {
		return err
	}
	if err := checkColumns(table, s, r); err != nil {
		return err
	}
	s.defaults(p, r)
	for _, col := range s.required {
		if r[col] == nil {
			return &common.RemoteError{
				Status:  400,
				Code:    "23502",
				Message: fmt.Sprintf("null value in column %q of relation %q violates not-null constraint", col, table),
			}
		}
	}
	if err := checkUUIDs(s, r); err != nil {
		return err
	}
	if !s.canInsert(r, uid) {
		return rlsViolation(table)
	}
	for _, existing := range p.tables[table] {
		if existing["id"] == r["id"] {
			return &common.RemoteError{
				Status:  409,
				Code:    "23505",
				Message: fmt.Sprintf("duplicate key value violates unique constraint \"%s_pkey\"", table),
			}
		}
	}

	p.tables[table] = append(p.tables[table], r)
	p.broadcast(table, platform.EventInsert)

	if !s.canSelect(r, uid) {
		return decode(nil, dest)
	}
	return decode([]row{clone(r)}, dest)
}

func (c *Conn) Update(ctx context.Context, table string, filters []platform.Filter, patch any, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uid, err := c.caller(ctx)
	if err != nil {
		return err
	}
	changes, err := toRow(patch)
	if err != nil {
		return err
	}

	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(OpUpdate, table); err != nil {
		return err
	}
	s, err := lookup(table)
	if err != nil {
		return err
	}
	if err := checkColumns(table, s, changes); err != nil {
		return err
	}
	if err := checkFilters(s, filters); err != nil {
		return err
	}

	var out []row
	for _, r := range p.tables[table] {
		if !s.canSelect(r, uid) || !s.canUpdate(r, uid) || !matches(r, filters) {
			continue
		}
		next := clone(r)
		for k, v := range changes {
			next[k] = v
		}
		if !s.canUpdate(next, uid) {
			return rlsViolation(table)
		}
		for k, v := range changes {
			r[k] = v
		}
		out = append(out, clone(r))
		p.broadcast(table, platform.EventUpdate)
	}
	return decode(out, dest)
}

func (c *Conn) Delete(ctx context.Context, table string, filters []platform.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uid, err := c.caller(ctx)
	if err != nil {
		return err
	}

	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(OpDelete, table); err != nil {
		return err
	}
	s, err := lookup(table)
	if err != nil {
		return err
	}
	if err := checkFilters(s, filters); err != nil {
		return err
	}

	kept := p.tables[table][:0]
	for _, r := range p.tables[table] {
		if s.canSelect(r, uid) && s.canDelete(r, uid) && matches(r, filters) {
			p.broadcast(table, platform.EventDelete)
			continue
		}
		kept = append(kept, r)
	}
	p.tables[table] = kept
	return nil
}

// Rows returns a copy of every row of table, ignoring policies.
func (p *Platform) Rows(table string) []map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]map[string]any, 0, len(p.tables[table]))
	for _, r := range p.tables[table] {
		out = append(out, clone(r))
	}
	return out
}

// project applies the column list and resolves embeds. Callers hold p.mu.
func (p *Platform) project(r row, q platform.Query, uid string) row {
	out := pick(r, q.Columns)
	for _, e := range q.Embeds {
		es, ok := schemas[e.Table]
		if !ok {
			continue
		}
		var joined any
		for _, other := range p.tables[e.Table] {
			if other["id"] == r[e.ForeignKey] && es.canSelect(other, uid) {
				joined = pick(other, e.Columns)
				break
			}
		}
		out[e.Table] = joined
	}
	return out
}

func pick(r row, columns []string) row {
	if len(columns) == 0 || slices.Contains(columns, "*") {
		return clone(r)
	}
	out := row{}
	for _, c := range columns {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func matches(r row, filters []platform.Filter) bool {
	for _, f := range filters {
		if fmt.Sprint(r[f.Column]) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func checkFilters(s schema, filters []platform.Filter) error {
	for _, f := range filters {
		if !slices.Contains(s.uuids, f.Column) {
			continue
		}
		v := fmt.Sprint(f.Value)
		if _, err := uuid.Parse(v); err != nil {
			return invalidUUID(v)
		}
	}
	return nil
}

func checkUUIDs(s schema, r row) error {
	for _, col := range s.uuids {
		v, ok := r[col].(string)
		if !ok {
			continue
		}
		if _, err := uuid.Parse(v); err != nil {
			return invalidUUID(v)
		}
	}
	return nil
}

func invalidUUID(v string) error {
	return &common.RemoteError{
		Status:  400,
		Code:    "22P02",
		Message: fmt.Sprintf("invalid input syntax for type uuid: %q", v),
	}
}

func checkColumns(table string, s schema, r row) error {
	for k := range r {
		if !slices.Contains(s.columns, k) {
			return &common.RemoteError{
				Status:  400,
				Code:    "PGRST204",
				Message: fmt.Sprintf("Could not find the '%s' column of '%s' in the schema cache", k, table),
			}
		}
	}
	return nil
}

func less(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		bv, _ := b.(time.Time)
		return av.Before(bv)
	case string:
		bv, _ := b.(string)
		return av < bv
	case float64:
		bv, _ := b.(float64)
		return av < bv
	case bool:
		bv, _ := b.(bool)
		return !av && bv
	default:
		return a == nil && b != nil
	}
}

func clone(r row) row {
	out := make(row, len(r))
	for k, v := range r {
		if nested, ok := v.(row); ok {
			v = clone(nested)
		}
		out[k] = v
	}
	return out
}

// toRow normalises a record through JSON so values compare like they would
// after a network round trip.
func toRow(record any) (row, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	r := row{}
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("record must be an object: %w", err)
	}
	return r, nil
}

func decode(rows []row, dest any) error {
	if dest == nil {
		return nil
	}
	if rows == nil {
		rows = []row{}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}
