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

// Package pg is the PostgreSQL access layer: connection templating, EXPLAIN
// in both estimated and measured form, DDL on fresh connections, and error
// classification. Everything above it speaks plan trees and actions, never
// raw driver types.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/pgcritic/pgcritic/critic"
)

// DSNPlaceholder is substituted with the task's database name.
const DSNPlaceholder = "{db_id}"

// ResolveDSN substitutes the task database into a connection template. A
// template without the placeholder is a fixed connection string and is
// returned unchanged.
func ResolveDSN(template, dbID string) string {
	if !strings.Contains(template, DSNPlaceholder) {
		return template
	}
	return strings.ReplaceAll(template, DSNPlaceholder, dbID)
}

// DB wraps one database handle plus the templating needed to open more.
type DB struct {
	*sql.DB
	dsn string
}

// Open connects to the database named by the template and task database.
func Open(template, dbID string) (*DB, error) {
	dsn := ResolveDSN(template, dbID)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(time.Minute)
	return &DB{DB: db, dsn: dsn}, nil
}

// DSN returns the resolved connection string.
func (d *DB) DSN() string { return d.dsn }

// Explain runs an estimated EXPLAIN and returns the raw JSON document.
func (d *DB) Explain(ctx context.Context, query string) ([]byte, error) {
	var raw []byte
	stmt := "EXPLAIN (FORMAT JSON) " + stripTrailingSemicolon(query)
	if err := d.QueryRowContext(ctx, stmt).Scan(&raw); err != nil {
		return nil, critic.ErrExplainFailed.Wrap(err, query)
	}
	return raw, nil
}

// ExplainAnalyze runs a measured EXPLAIN under a statement timeout. The
// timeout is applied with SET LOCAL inside a throwaway transaction so it
// cannot leak to later statements on the same connection, and the
// transaction is always rolled back so the measured statement's side effects
// (for DML) are discarded.
func (d *DB) ExplainAnalyze(ctx context.Context, query string, timeout time.Duration) ([]byte, error) {
	conn, err := d.Conn(ctx)
	if err != nil {
		return nil, critic.ErrExplainFailed.Wrap(err, query)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, critic.ErrExplainFailed.Wrap(err, query)
	}
	defer tx.Rollback()

	if timeout > 0 {
		set := fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, set); err != nil {
			return nil, critic.ErrExplainFailed.Wrap(err, query)
		}
	}

	var raw []byte
	stmt := "EXPLAIN (ANALYZE, FORMAT JSON) " + stripTrailingSemicolon(query)
	if err := tx.QueryRowContext(ctx, stmt).Scan(&raw); err != nil {
		if IsStatementTimeout(err) {
			return nil, critic.ErrStatementTimeout.Wrap(err, query)
		}
		return nil, critic.ErrExplainFailed.Wrap(err, query)
	}
	return raw, nil
}

// ExecDDL executes a DDL or maintenance statement on a fresh connection with
// its own statement timeout, outside any evaluation transaction. Real
// indexes must be visible to every later session, so autocommit is exactly
// what we want here.
func ExecDDL(ctx context.Context, dsn, stmt string, timeout time.Duration) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if timeout > 0 {
		set := fmt.Sprintf("SET statement_timeout = %d", timeout.Milliseconds())
		if _, err := conn.ExecContext(ctx, set); err != nil {
			return err
		}
	}

	start := time.Now()
	_, err = conn.ExecContext(ctx, stmt)
	logrus.WithFields(logrus.Fields{
		"elapsed": time.Since(start),
		"ok":      err == nil,
	}).Debugf("ddl: %s", firstLine(stmt))
	if IsStatementTimeout(err) {
		return critic.ErrStatementTimeout.Wrap(err, stmt)
	}
	return err
}

func stripTrailingSemicolon(q string) string {
	return strings.TrimRight(strings.TrimSpace(q), "; \t\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// SplitStatements splits a multi-statement SQL string on semicolons that sit
// outside quotes and dollar-quoted bodies. Empty fragments are dropped.
func SplitStatements(sqlText string) []string {
	var stmts []string
	var b strings.Builder
	var inSingle, inDouble, inDollar bool
	for i := 0; i < len(sqlText); i++ {
		c := sqlText[i]
		switch {
		case inDollar:
			b.WriteByte(c)
			if c == '$' && i+1 < len(sqlText) && sqlText[i+1] == '$' {
				b.WriteByte('$')
				i++
				inDollar = false
			}
		case c == '\'' && !inDouble:
			inSingle = !inSingle
			b.WriteByte(c)
		case c == '"' && !inSingle:
			inDouble = !inDouble
			b.WriteByte(c)
		case c == '$' && !inSingle && !inDouble && i+1 < len(sqlText) && sqlText[i+1] == '$':
			inDollar = true
			b.WriteString("$$")
			i++
		case c == ';' && !inSingle && !inDouble:
			if s := strings.TrimSpace(b.String()); s != "" {
				stmts = append(stmts, s)
			}
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
