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

package eval

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/pg"
)

// MaxCapturedRows bounds how many result rows the runner keeps per query.
// The row count is still exact; only the captured multiset is truncated.
const MaxCapturedRows = 5000

var createdObjectRE = regexp.MustCompile(`(?i)CREATE\s+(?:TABLE|TYPE|VIEW|INDEX|SEQUENCE)\s+(?:IF\s+NOT\s+EXISTS\s+)?([\w.]+)`)

// RunResult is the outcome of one isolated preprocess/predicted/cleanup run.
type RunResult struct {
	PreprocessOK   bool `json:"preprocess_ok"`
	FailedStep     int  `json:"failed_step,omitempty"`
	PredictedOK    bool `json:"predicted_ok"`
	CleanupOK      bool `json:"cleanup_ok"`
	// WorkflowComplete is set when every phase ran to completion, regardless
	// of whether the predicted results are semantically right.
	WorkflowComplete bool `json:"workflow_complete"`

	// Predicted holds the captured result set for SELECT workflows.
	Predicted *ResultSet `json:"-"`
	RowCount  int        `json:"row_count,omitempty"`
	// AffectedRows is the DML/DDL row count when the predicted SQL is not a
	// SELECT.
	AffectedRows int64 `json:"affected_rows,omitempty"`

	// Reference holds the reference solution's result set when one ran.
	Reference *ResultSet `json:"-"`

	// CreatedObjects lists relation and type names the preprocess created,
	// for resolving references in the predicted SQL.
	CreatedObjects []string `json:"created_objects,omitempty"`

	Err string `json:"error,omitempty"`
}

// Runner executes a task's statement sequences inside one rolled-back
// transaction so the database is bit-identical before and after.
type Runner struct {
	db          *pg.DB
	stmtTimeout time.Duration
}

// NewRunner creates a runner on the task database.
func NewRunner(db *pg.DB, stmtTimeout time.Duration) *Runner {
	return &Runner{db: db, stmtTimeout: stmtTimeout}
}

// Run executes preprocess, the predicted statements, optionally the
// reference solution, and cleanup, then rolls everything back. Only
// infrastructure failures (no connection, no transaction) return an error;
// statement failures are recorded in the result.
func (r *Runner) Run(ctx *critic.Context, task *critic.Task, predicted []string) (*RunResult, error) {
	res := &RunResult{}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	// The rollback is the whole point: nothing this run does survives.
	defer tx.Rollback()

	if r.stmtTimeout > 0 {
		set := fmt.Sprintf("SET LOCAL statement_timeout = %d", r.stmtTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, set); err != nil {
			return nil, err
		}
	}

	res.PreprocessOK = r.preprocess(ctx, tx, task, res)
	if res.PreprocessOK {
		res.PredictedOK = r.predicted(ctx, tx, predicted, res)
		if task.Solution != "" && res.PredictedOK && res.Predicted != nil {
			res.Reference = r.reference(ctx, tx, task.Solution)
		}
	}
	res.CleanupOK = r.cleanup(ctx, tx, task)

	res.WorkflowComplete = res.PreprocessOK && res.PredictedOK && res.CleanupOK
	return res, nil
}

// preprocess runs the setup statements. "already exists" failures are
// treated as success so reruns of idempotent setups keep working; any other
// failure stops the phase and records the failing index.
func (r *Runner) preprocess(ctx context.Context, tx *sql.Tx, task *critic.Task, res *RunResult) bool {
	for i, stmt := range task.Preprocess {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if pg.IsAlreadyExists(err) {
				logrus.Debugf("preprocess step %d: object already exists, continuing", i+1)
			} else {
				res.FailedStep = i + 1
				res.Err = pg.Message(err)
				return false
			}
		}
		if m := createdObjectRE.FindStringSubmatch(stmt); m != nil {
			res.CreatedObjects = append(res.CreatedObjects, strings.ToLower(m[1]))
		}
	}
	return true
}

func (r *Runner) predicted(ctx context.Context, tx *sql.Tx, stmts []string, res *RunResult) bool {
	for i, stmt := range stmts {
		last := i == len(stmts)-1
		if isRowReturning(stmt) && last {
			set, count, err := captureRows(ctx, tx, stmt)
			if err != nil {
				res.Err = pg.Message(err)
				return false
			}
			res.Predicted = set
			res.RowCount = count
			continue
		}
		out, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			res.Err = pg.Message(err)
			return false
		}
		if n, err := out.RowsAffected(); err == nil {
			res.AffectedRows += n
		}
	}
	return true
}

func (r *Runner) reference(ctx context.Context, tx *sql.Tx, solution string) *ResultSet {
	stmts := pg.SplitStatements(solution)
	if len(stmts) == 0 {
		return nil
	}
	final := stmts[len(stmts)-1]
	for _, stmt := range stmts[:len(stmts)-1] {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			logrus.WithError(err).Debug("reference solution setup failed")
			return nil
		}
	}
	set, _, err := captureRows(ctx, tx, final)
	if err != nil {
		logrus.WithError(err).Debug("reference solution failed")
		return nil
	}
	return set
}

func (r *Runner) cleanup(ctx context.Context, tx *sql.Tx, task *critic.Task) bool {
	ok := true
	for i, stmt := range task.Cleanup {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			// Cleanup errors are logged, never fatal: the rollback undoes
			// whatever cleanup would have.
			logrus.WithError(err).Debugf("cleanup step %d failed", i+1)
			ok = false
		}
	}
	return ok
}

func isRowReturning(stmt string) bool {
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	return strings.HasPrefix(upper, "SELECT") ||
		strings.HasPrefix(upper, "WITH") ||
		strings.Contains(upper, "RETURNING")
}

func captureRows(ctx context.Context, tx *sql.Tx, stmt string) (*ResultSet, int, error) {
	rows, err := tx.QueryContext(ctx, stmt)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, 0, err
	}

	set := &ResultSet{Columns: cols}
	count := 0
	for rows.Next() {
		count++
		if count > MaxCapturedRows {
			continue
		}
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, count, err
		}
		set.Rows = append(set.Rows, vals)
	}
	return set, count, rows.Err()
}
