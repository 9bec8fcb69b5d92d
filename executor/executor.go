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

// Package executor applies planner actions to the database. Real DDL runs on
// fresh autocommit connections so it survives the evaluation transaction;
// hypothetical DDL never leaves its own session. Engine errors become result
// errors, never panics.
package executor

import (
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/pg"
)

var analyzeTargetRE = regexp.MustCompile(`(?i)^(?:RUN_)?ANALYZE\s+([\w.]+)`)

// Result is the outcome of one dispatched action.
type Result struct {
	// Queries is the (possibly replaced) current query set.
	Queries []string
	// Mutated reports whether the database changed.
	Mutated bool
	// Hypo carries the hypothetical-index verdict for TestIndex actions.
	Hypo *HypoReport
	// Message is a short human-readable note for iteration insight.
	Message string
	// Err is the action-level error, recorded as outcome=error upstream.
	Err error
}

// Executor dispatches actions against one task database.
type Executor struct {
	dsn     string
	timeout time.Duration
	hypo    *Prober
}

// New creates an executor for the resolved connection string. timeout bounds
// each DDL statement.
func New(dsn string, timeout time.Duration, hypo *Prober) *Executor {
	return &Executor{dsn: dsn, timeout: timeout, hypo: hypo}
}

// Execute applies the action to the database and the current query set.
func (e *Executor) Execute(ctx *critic.Context, action critic.Action, queries []string) Result {
	span, sctx := ctx.Span("executor." + strings.ToLower(string(action.Kind)))
	defer span.Finish()

	switch action.Kind {
	case critic.ActionCreateIndex:
		return e.createIndex(sctx, action, queries)
	case critic.ActionRunAnalyze:
		return e.runAnalyze(sctx, action, queries)
	case critic.ActionRewriteQuery:
		return e.rewrite(action, queries)
	case critic.ActionTestIndex:
		return e.testIndex(sctx, action, queries)
	case critic.ActionDone, critic.ActionFailed:
		return Result{Queries: queries}
	}
	return Result{Queries: queries, Err: critic.ErrActionParse.New("unknown action kind " + string(action.Kind))}
}

func (e *Executor) createIndex(ctx *critic.Context, action critic.Action, queries []string) Result {
	if err := pg.ExecDDL(ctx, e.dsn, action.DDL, e.timeout); err != nil {
		if pg.IsAlreadyExists(err) {
			// The index is there either way; treat it as applied.
			return Result{Queries: queries, Mutated: true, Message: "index already exists"}
		}
		return Result{Queries: queries, Err: err}
	}
	logrus.WithField("ddl", action.Summary()).Info("index created")
	return Result{Queries: queries, Mutated: true, Message: "created " + action.Summary()}
}

func (e *Executor) runAnalyze(ctx *critic.Context, action critic.Action, queries []string) Result {
	stmt := strings.TrimSpace(action.DDL)
	// The planner sometimes echoes the analyzer's RUN_ANALYZE directive
	// verbatim; normalize it to executable SQL.
	if m := analyzeTargetRE.FindStringSubmatch(stmt); m != nil {
		stmt = "ANALYZE " + m[1]
	}
	if err := pg.ExecDDL(ctx, e.dsn, stmt, e.timeout); err != nil {
		return Result{Queries: queries, Err: err}
	}
	return Result{Queries: queries, Mutated: true, Message: "statistics refreshed"}
}

func (e *Executor) rewrite(action critic.Action, queries []string) Result {
	stmts := pg.SplitStatements(action.NewQuery)
	if len(stmts) == 0 {
		return Result{Queries: queries, Err: critic.ErrActionField.New(action.Kind, "new_query")}
	}
	return Result{Queries: stmts, Message: "query rewritten"}
}

func (e *Executor) testIndex(ctx *critic.Context, action critic.Action, queries []string) Result {
	if e.hypo == nil {
		return Result{Queries: queries, Err: critic.ErrHypoUnavailable.New()}
	}
	probe := ""
	if len(queries) > 0 {
		probe = queries[0]
	}
	report, err := e.hypo.Test(ctx, action.DDL, probe)
	if err != nil {
		return Result{Queries: queries, Err: err}
	}
	return Result{Queries: queries, Hypo: report, Message: report.Verdict()}
}
