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

package semantic

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/llm"
)

func highReport() *critic.Report {
	return &critic.Report{
		TotalCost: 1800,
		Bottlenecks: []critic.Bottleneck{{
			Kind:       critic.SeqScanLargeTable,
			Severity:   critic.SeverityHigh,
			SeverityS:  "HIGH",
			Table:      "users",
			Columns:    []string{"email"},
			Rows:       100000,
			Reason:     "sequential scan on users reads 100000 rows",
			Suggestion: "CREATE INDEX idx_users_email ON users(email);",
		}},
	}
}

func TestDeterministicFail(t *testing.T) {
	ctx := critic.NewContext(nil)
	fb, err := NewDeterministic().Translate(ctx, highReport(), critic.DefaultConstraints())
	require.NoError(t, err)

	require.Equal(t, critic.StatusFail, fb.Status)
	require.Equal(t, critic.PriorityHigh, fb.Priority)
	require.Equal(t, "CREATE INDEX idx_users_email ON users(email);", fb.Suggestion)
	require.Contains(t, fb.Reason, "100000 rows")
	require.NotNil(t, fb.Report)
}

func TestDeterministicPass(t *testing.T) {
	ctx := critic.NewContext(nil)
	report := &critic.Report{TotalCost: 12.5}
	fb, err := NewDeterministic().Translate(ctx, report, critic.DefaultConstraints())
	require.NoError(t, err)

	require.Equal(t, critic.StatusPass, fb.Status)
	require.Equal(t, critic.NoAction, fb.Suggestion)
	require.Equal(t, critic.PriorityLow, fb.Priority)
}

func TestDeterministicWarning(t *testing.T) {
	ctx := critic.NewContext(nil)
	report := &critic.Report{
		TotalCost: 900,
		Bottlenecks: []critic.Bottleneck{{
			Kind:       critic.ExternalSort,
			Severity:   critic.SeverityMedium,
			Suggestion: "CREATE INDEX idx_logs_created_at ON logs(created_at);",
			Reason:     "sort of 5000 rows exceeds working memory",
		}},
	}
	fb, err := NewDeterministic().Translate(ctx, report, critic.DefaultConstraints())
	require.NoError(t, err)
	require.Equal(t, critic.StatusWarning, fb.Status)
	require.Equal(t, critic.PriorityMedium, fb.Priority)
}

func TestCostOverBudgetFailsCleanReport(t *testing.T) {
	ctx := critic.NewContext(nil)
	report := &critic.Report{TotalCost: 80000}
	fb, err := NewDeterministic().Translate(ctx, report, critic.DefaultConstraints())
	require.NoError(t, err)
	require.Equal(t, critic.StatusFail, fb.Status)
	require.Contains(t, fb.Reason, "budget")
}

func TestLLMKeepsCanonicalSuggestion(t *testing.T) {
	ctx := critic.NewContext(nil)
	client := llm.NewScripted(`{
		"status": "fail",
		"reason": "users table is scanned end to end for every lookup",
		"suggestion": "CREATE INDEX idx_users_whatever ON users (id, email, name);",
		"priority": "HIGH"
	}`)

	fb, err := NewLLM(client).Translate(ctx, highReport(), critic.DefaultConstraints())
	require.NoError(t, err)

	// Phrasing comes from the model, the remedy does not.
	require.Equal(t, "users table is scanned end to end for every lookup", fb.Reason)
	require.Equal(t, "CREATE INDEX idx_users_email ON users(email);", fb.Suggestion)
	require.Equal(t, critic.StatusFail, fb.Status)
}

func TestLLMFallsBackOnModelError(t *testing.T) {
	ctx := critic.NewContext(nil)
	client := llm.NewScripted().FailWith(0, llm.ErrEmptyCompletion.New())

	fb, err := NewLLM(client).Translate(ctx, highReport(), critic.DefaultConstraints())
	require.NoError(t, err)
	require.Equal(t, critic.StatusFail, fb.Status)
	require.Contains(t, fb.Reason, "sequential scan")
}

func TestLLMSkipsModelOnCleanReport(t *testing.T) {
	ctx := critic.NewContext(nil)
	client := llm.NewScripted("should never be used")

	fb, err := NewLLM(client).Translate(ctx, &critic.Report{TotalCost: 10}, critic.DefaultConstraints())
	require.NoError(t, err)
	require.Equal(t, critic.StatusPass, fb.Status)
	require.Zero(t, client.Calls())
}

func TestExplainFailure(t *testing.T) {
	fb := ExplainFailure("statement timed out during analysis")
	require.Equal(t, critic.StatusError, fb.Status)
	require.Equal(t, critic.PriorityHigh, fb.Priority)
	require.False(t, fb.NeedsRewrite)
}

func TestSyntaxFailureDemandsRewrite(t *testing.T) {
	fb := SyntaxFailure(`CRITICAL: referenced "userz" does not exist`)
	require.Equal(t, critic.StatusFail, fb.Status)
	require.Equal(t, critic.PriorityHigh, fb.Priority)
	require.True(t, fb.NeedsRewrite)
}
