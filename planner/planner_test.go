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

package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/llm"
)

func testRequest() Request {
	return Request{
		Task: &critic.Task{
			InstanceID: 42,
			DBID:       "tpch",
			Intent:     "Find the user by email quickly",
			IssueSQL:   []string{"SELECT * FROM users WHERE email = 'alice@example.com'"},
			Category:   critic.CategoryEfficiency,
			Efficiency: true,
		},
		Queries: []string{"SELECT * FROM users WHERE email = 'alice@example.com'"},
		Feedback: &critic.Feedback{
			Status:     critic.StatusFail,
			Reason:     "sequential scan on users reads 100000 rows",
			Suggestion: "CREATE INDEX idx_users_email ON users(email);",
			Priority:   critic.PriorityHigh,
		},
		SchemaText:    "TABLE users (\n  id integer NOT NULL\n  email text\n)\n",
		Iteration:     1,
		MaxIterations: 10,
		HypoAvailable: true,
	}
}

func TestPlanParsesFencedJSON(t *testing.T) {
	client := llm.NewScripted("Here is my choice:\n```json\n" +
		`{"action": "CREATE_INDEX", "ddl": "CREATE INDEX idx_users_email ON users (email);", "reasoning": "seq scan", "confidence": 0.9}` +
		"\n```")
	p := New(client)

	action := p.Plan(critic.NewContext(nil), testRequest())
	require.Equal(t, critic.ActionCreateIndex, action.Kind)
	require.Equal(t, "CREATE INDEX idx_users_email ON users (email);", action.DDL)
	require.Equal(t, 0.9, action.Confidence)
}

func TestPlanFailsOnModelError(t *testing.T) {
	client := llm.NewScripted().FailWith(0, llm.ErrEmptyCompletion.New())
	action := New(client).Plan(critic.NewContext(nil), testRequest())
	require.Equal(t, critic.ActionFailed, action.Kind)
	require.Contains(t, action.Reasoning, "planning error")
}

func TestPromptSections(t *testing.T) {
	req := testRequest()
	req.Memory = []critic.IterationRecord{
		{Ordinal: 1, Kind: critic.ActionCreateIndex, Summary: "idx_users_email", DeltaPct: -42.1, Outcome: critic.OutcomeImproved},
	}
	req.ExecutedDDL = []string{"INDEX:idx_users_email"}
	req.Stagnating = true

	prompt := BuildPrompt(req)
	require.Contains(t, prompt, "## Task\nFind the user by email quickly")
	require.Contains(t, prompt, "## Current SQL\nSELECT * FROM users")
	require.Contains(t, prompt, "status: fail")
	require.Contains(t, prompt, "suggestion: CREATE INDEX idx_users_email ON users(email);")
	require.Contains(t, prompt, "Iter 1: CREATE_INDEX(idx_users_email) -> -42.1%, improved")
	require.Contains(t, prompt, "WARNING: recent iterations show no meaningful cost movement")
	require.Contains(t, prompt, "## Already executed (do not repeat)\nINDEX:idx_users_email")
	require.Contains(t, prompt, "## Schema\nTABLE users (")
	require.Contains(t, prompt, "Prefer CREATE_INDEX or RUN_ANALYZE")
	require.Contains(t, prompt, "1 of 10")
}

func TestPromptManagementBatchRule(t *testing.T) {
	req := testRequest()
	req.Task.Category = critic.CategoryManagement
	req.Task.IssueSQL = []string{"CREATE TYPE mood AS ENUM ('sad', 'ok')", "ALTER TABLE t ADD COLUMN m mood"}
	req.Queries = req.Task.IssueSQL

	prompt := BuildPrompt(req)
	require.Contains(t, prompt, "multi-statement management task")
}

func TestPromptUpdateReturningRule(t *testing.T) {
	req := testRequest()
	req.Queries = []string{
		"UPDATE orders SET total = total * 1.1 FROM customers c WHERE orders.cust_id = c.id RETURNING orders.id, c.name",
	}
	prompt := BuildPrompt(req)
	require.Contains(t, prompt, "common table expression")
}

func TestPromptSyntaxErrorForbidsDDL(t *testing.T) {
	req := testRequest()
	req.Feedback = &critic.Feedback{
		Status:       critic.StatusFail,
		Reason:       `CRITICAL: syntax error: syntax error at or near "FORM"`,
		NeedsRewrite: true,
	}
	prompt := BuildPrompt(req)
	require.Contains(t, prompt, "must emit REWRITE_QUERY")
}

func TestPromptAnalysisErrorDoesNotForbidDDL(t *testing.T) {
	// A timeout during analysis means the SQL may be valid but slow; the
	// rewrite mandate must not fire.
	req := testRequest()
	req.Feedback = &critic.Feedback{Status: critic.StatusError, Reason: "statement timed out during analysis"}
	prompt := BuildPrompt(req)
	require.NotContains(t, prompt, "must emit REWRITE_QUERY")
}

func TestPromptHypoUnavailable(t *testing.T) {
	req := testRequest()
	req.HypoAvailable = false
	prompt := BuildPrompt(req)
	require.Contains(t, prompt, "do not emit TEST_INDEX")
}
