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

package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgcritic/pgcritic/critic"
)

func TestRewriteSplitsStatements(t *testing.T) {
	e := New("postgres://unused", 0, nil)
	action := critic.Action{
		Kind:     critic.ActionRewriteQuery,
		NewQuery: "CREATE TYPE mood AS ENUM ('sad'); ALTER TABLE t ADD COLUMN m mood;",
	}

	res := e.Execute(critic.NewContext(nil), action, []string{"old"})
	require.NoError(t, res.Err)
	require.False(t, res.Mutated)
	require.Equal(t, []string{
		"CREATE TYPE mood AS ENUM ('sad')",
		"ALTER TABLE t ADD COLUMN m mood",
	}, res.Queries)
}

func TestRewriteEmptyQueryIsError(t *testing.T) {
	e := New("postgres://unused", 0, nil)
	res := e.Execute(critic.NewContext(nil), critic.Action{
		Kind:     critic.ActionRewriteQuery,
		NewQuery: " ; ",
	}, []string{"old"})
	require.Error(t, res.Err)
	require.Equal(t, []string{"old"}, res.Queries)
}

func TestTerminalActionsAreNoOps(t *testing.T) {
	e := New("postgres://unused", 0, nil)
	for _, kind := range []critic.ActionKind{critic.ActionDone, critic.ActionFailed} {
		res := e.Execute(critic.NewContext(nil), critic.Action{Kind: kind}, []string{"q"})
		require.NoError(t, res.Err)
		require.False(t, res.Mutated)
		require.Equal(t, []string{"q"}, res.Queries)
	}
}

func TestTestIndexWithoutProber(t *testing.T) {
	e := New("postgres://unused", 0, nil)
	res := e.Execute(critic.NewContext(nil), critic.Action{
		Kind: critic.ActionTestIndex,
		DDL:  "CREATE INDEX idx ON t (c)",
	}, []string{"SELECT 1"})
	require.Error(t, res.Err)
	require.True(t, critic.ErrHypoUnavailable.Is(res.Err))
}

func TestAnalyzeTargetNormalization(t *testing.T) {
	require.Equal(t, []string{"users"}, analyzeTargetRE.FindStringSubmatch("RUN_ANALYZE users")[1:])
	require.Equal(t, []string{"public.users"}, analyzeTargetRE.FindStringSubmatch("ANALYZE public.users;")[1:])
	require.Nil(t, analyzeTargetRE.FindStringSubmatch("VACUUM users"))
}

func TestEvaluateBeneficial(t *testing.T) {
	r := Evaluate(1000, 150, `"Index Scan using <13374>hypo_idx on users"`)
	require.True(t, r.Available)
	require.True(t, r.WouldBeUsed)
	require.True(t, r.Beneficial)
	require.InDelta(t, 85, r.ImprovementPct, 0.01)
	require.Contains(t, r.Verdict(), "beneficial")
}

func TestEvaluateBelowThreshold(t *testing.T) {
	r := Evaluate(1000, 950, `"Index Scan using <13374>hypo_idx on users"`)
	require.True(t, r.WouldBeUsed)
	require.False(t, r.Beneficial)
	require.Contains(t, r.Verdict(), "not beneficial")
}

func TestEvaluateIndexNotUsed(t *testing.T) {
	r := Evaluate(1000, 1000, `"Seq Scan on users"`)
	require.False(t, r.WouldBeUsed)
	require.False(t, r.Beneficial)
	require.Contains(t, r.Verdict(), "would not be used")
}

func TestUnavailableVerdict(t *testing.T) {
	r := &HypoReport{}
	require.Contains(t, r.Verdict(), "unavailable")
}
