// Copyright 2025 pgcritic contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pgcritic/pgcritic/critic"
)

// Querier is the subset of database/sql the oracle needs, so tests can feed
// it canned catalogs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Oracle fetches and caches the schema of one database for one task. The
// cache lives as long as the task; only the index catalog is refetched after
// the agent creates an index.
type Oracle struct {
	db         Querier
	database   string
	sampleRows int

	mu           sync.Mutex
	cached       *Schema
	indexesDirty bool
}

// NewOracle creates an oracle for one task's database. sampleRows bounds how
// many example rows are captured per table; zero disables sampling.
func NewOracle(db Querier, database string, sampleRows int) *Oracle {
	return &Oracle{db: db, database: database, sampleRows: sampleRows}
}

// Schema returns the cached schema, fetching on first use. When the index
// catalog was invalidated only the indexes are refetched.
func (o *Oracle) Schema(ctx *critic.Context) (*Schema, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cached == nil {
		s, err := o.fetch(ctx)
		if err != nil {
			return nil, critic.ErrSchemaFetch.Wrap(err, o.database)
		}
		o.cached = s
		o.indexesDirty = false
		return s, nil
	}
	if o.indexesDirty {
		if err := o.refreshIndexes(ctx); err != nil {
			return nil, critic.ErrSchemaFetch.Wrap(err, o.database)
		}
		o.indexesDirty = false
	}
	return o.cached, nil
}

// InvalidateIndexes marks the index catalog stale. The next Schema call
// refetches indexes while keeping tables, keys, and samples.
func (o *Oracle) InvalidateIndexes() {
	o.mu.Lock()
	o.indexesDirty = true
	o.mu.Unlock()
}

func (o *Oracle) fetch(ctx context.Context) (*Schema, error) {
	s := &Schema{Database: o.database}

	tables, err := o.tableNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range tables {
		t := &Table{Name: name}
		if t.Columns, err = o.columns(ctx, name); err != nil {
			return nil, err
		}
		if t.PrimaryKey, err = o.primaryKey(ctx, name); err != nil {
			return nil, err
		}
		if t.ForeignKeys, err = o.foreignKeys(ctx, name); err != nil {
			return nil, err
		}
		if t.Indexes, err = o.indexes(ctx, name); err != nil {
			return nil, err
		}
		if o.sampleRows > 0 {
			if t.SampleRows, err = o.samples(ctx, name); err != nil {
				// Sampling is best-effort; a weird type must not sink
				// the whole fetch.
				logrus.WithError(err).Debugf("sampling %s failed", name)
			}
		}
		s.Tables = append(s.Tables, t)
	}
	return s, nil
}

func (o *Oracle) tableNames(ctx context.Context) ([]string, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = 'public' ORDER BY tablename`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (o *Oracle) columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (o *Oracle) primaryKey(ctx context.Context, table string) ([]string, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = $1::regclass AND i.indisprimary
		ORDER BY array_position(i.indkey, a.attnum)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (o *Oracle) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = 'public' AND tc.table_name = $1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (o *Oracle) indexes(ctx context.Context, table string) ([]Index, error) {
	rows, err := o.db.QueryContext(ctx, `
		SELECT indexname, indexdef
		FROM pg_catalog.pg_indexes
		WHERE schemaname = 'public' AND tablename = $1
		ORDER BY indexname`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var idxs []Index
	for rows.Next() {
		var idx Index
		if err := rows.Scan(&idx.Name, &idx.Definition); err != nil {
			return nil, err
		}
		idx.Unique = strings.Contains(idx.Definition, "UNIQUE INDEX")
		idx.Columns = indexColumns(idx.Definition)
		idxs = append(idxs, idx)
	}
	return idxs, rows.Err()
}

// indexColumns pulls the column list out of an indexdef like
// "CREATE INDEX idx ON public.users USING btree (email, status)".
func indexColumns(def string) []string {
	open := strings.Index(def, "(")
	end := strings.LastIndex(def, ")")
	if open < 0 || end <= open {
		return nil
	}
	var cols []string
	for _, part := range strings.Split(def[open+1:end], ",") {
		part = strings.TrimSpace(part)
		if i := strings.IndexByte(part, ' '); i > 0 {
			part = part[:i]
		}
		if part != "" {
			cols = append(cols, part)
		}
	}
	return cols
}

func (o *Oracle) refreshIndexes(ctx context.Context) error {
	for _, t := range o.cached.Tables {
		idxs, err := o.indexes(ctx, t.Name)
		if err != nil {
			return err
		}
		t.Indexes = idxs
	}
	logrus.WithField("database", o.database).Debug("index catalog refreshed")
	return nil
}

func (o *Oracle) samples(ctx context.Context, table string) ([]string, error) {
	rows, err := o.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, quoteIdent(table), o.sampleRows))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []string
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		parts := make([]string, len(cols))
		for i, v := range vals {
			parts[i] = renderValue(v)
		}
		out = append(out, "("+strings.Join(parts, ", ")+")")
	}
	return out, rows.Err()
}

func renderValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return "'" + string(t) + "'"
	case string:
		return "'" + t + "'"
	default:
		return fmt.Sprint(t)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
