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

package critic

import "gopkg.in/src-d/go-errors.v1"

var (
	// ErrTaskInvalid is returned when a task record is missing required fields.
	ErrTaskInvalid = errors.NewKind("invalid task %s: %s")

	// ErrExplainFailed is returned when the database rejects an EXPLAIN request.
	ErrExplainFailed = errors.NewKind("explain failed: %s")

	// ErrPlanParse is returned when EXPLAIN output cannot be decoded into a plan tree.
	ErrPlanParse = errors.NewKind("cannot parse plan: %s")

	// ErrActionParse is returned when a planner response does not yield a usable action.
	ErrActionParse = errors.NewKind("cannot parse action from planner response: %s")

	// ErrActionField is returned when an action is missing a field its kind requires.
	ErrActionField = errors.NewKind("action %s requires field %q")

	// ErrStatementTimeout is returned when a statement was cancelled by the
	// per-statement timeout.
	ErrStatementTimeout = errors.NewKind("statement timed out: %s")

	// ErrHypoUnavailable is returned when the hypothetical-index extension is
	// not installed on the target database.
	ErrHypoUnavailable = errors.NewKind("hypothetical index extension unavailable")

	// ErrTaskTimeout is returned when the per-task wall-clock budget expires.
	ErrTaskTimeout = errors.NewKind("task %s timed out")

	// ErrMaxIterations is returned when the iteration budget is exhausted
	// without reaching a terminal action.
	ErrMaxIterations = errors.NewKind("max iterations (%d) reached")

	// ErrSchemaFetch is returned when schema introspection fails.
	ErrSchemaFetch = errors.NewKind("cannot fetch schema for %s: %s")

	// ErrUnknownMetric is returned when a metric override names a metric that
	// does not exist.
	ErrUnknownMetric = errors.NewKind("unknown metric: %s")
)
