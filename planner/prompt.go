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
	"fmt"
	"regexp"
	"strings"

	"github.com/pgcritic/pgcritic/critic"
)

const systemPrompt = `You are a PostgreSQL query optimization agent. Each turn you
receive the task intent, the current SQL, plan-analysis feedback, your recent
iteration history, and the database schema. Choose exactly one next action.

Respond with a single JSON object and nothing else:
  {"action": "<KIND>", "ddl": "...", "new_query": "...", "reasoning": "...", "confidence": 0.0-1.0}

Action kinds:
  CREATE_INDEX  - requires "ddl": one CREATE INDEX statement
  TEST_INDEX    - requires "ddl": a CREATE INDEX to evaluate hypothetically first
  RUN_ANALYZE   - requires "ddl": an ANALYZE <table> statement
  REWRITE_QUERY - requires "new_query": the full replacement SQL
  DONE          - the query is acceptable; stop
  FAILED        - no productive action remains; stop

Rules:
- Never repeat an action your history records as "regressed" or "unchanged".
- If an index you created is not used by the planner, try RUN_ANALYZE on its table.
- Emit DONE when feedback status is "pass" or no further improvement is plausible.
- Only reference tables and columns that appear in the schema.`

var updateReturningJoinRE = regexp.MustCompile(`(?is)UPDATE\s.+\sFROM\s.+\sRETURNING\s`)

// Request carries everything the planner needs for one decision.
type Request struct {
	Task          *critic.Task
	Queries       []string
	Feedback      *critic.Feedback
	Memory        []critic.IterationRecord
	SchemaText    string
	Iteration     int
	MaxIterations int
	ExecutedDDL   []string
	CreatedEnums  []string
	Stagnating    bool
	Ineffective   bool
	HypoAvailable bool
}

// BuildPrompt renders the single structured user message for one iteration.
func BuildPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Task\n%s\n\n", strings.TrimSpace(req.Task.Intent))
	fmt.Fprintf(&b, "## Current SQL\n%s\n\n", strings.Join(req.Queries, ";\n"))

	b.WriteString("## Feedback\n")
	if fb := req.Feedback; fb != nil {
		fmt.Fprintf(&b, "status: %s\nreason: %s\nsuggestion: %s\npriority: %s\n\n",
			fb.Status, fb.Reason, fb.Suggestion, fb.Priority)
	} else {
		b.WriteString("none\n\n")
	}

	fmt.Fprintf(&b, "## Iteration\n%d of %d\n\n", req.Iteration, req.MaxIterations)

	if len(req.Memory) > 0 {
		b.WriteString("## History\n")
		for _, r := range req.Memory {
			b.WriteString(r.String())
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	if req.Stagnating {
		b.WriteString("WARNING: recent iterations show no meaningful cost movement. Change strategy or emit DONE/FAILED.\n\n")
	}
	if req.Ineffective {
		b.WriteString("WARNING: none of the recent actions improved cost. Indexes may not be used by the planner; consider RUN_ANALYZE or a rewrite.\n\n")
	}
	if len(req.ExecutedDDL) > 0 {
		fmt.Fprintf(&b, "## Already executed (do not repeat)\n%s\n\n", strings.Join(req.ExecutedDDL, "\n"))
	}
	if len(req.CreatedEnums) > 0 {
		fmt.Fprintf(&b, "## Enum types created earlier this task\n%s\n\n", strings.Join(req.CreatedEnums, ", "))
	}

	if req.SchemaText != "" {
		fmt.Fprintf(&b, "## Schema\n%s\n", req.SchemaText)
		b.WriteByte('\n')
	}

	if rules := categoryRules(req); rules != "" {
		fmt.Fprintf(&b, "## Category rules\n%s\n", rules)
	}

	b.WriteString("Respond with a single JSON object now.")
	return b.String()
}

func categoryRules(req Request) string {
	var rules []string

	switch req.Task.Category {
	case critic.CategoryManagement:
		if len(req.Task.IssueSQL) > 1 {
			rules = append(rules, "- This is a multi-statement management task. You may emit one REWRITE_QUERY containing the full corrected statement sequence; statements are applied in order.")
		}
	case critic.CategoryEfficiency:
		rules = append(rules, "- Prefer CREATE_INDEX or RUN_ANALYZE over query rewrites.")
	}

	joined := strings.Join(req.Queries, ";\n")
	if updateReturningJoinRE.MatchString(joined) {
		rules = append(rules, "- PostgreSQL cannot reference the joined table in UPDATE ... FROM ... RETURNING. Rewrite using a common table expression: WITH updated AS (UPDATE ... RETURNING ...) SELECT ... FROM updated JOIN ....")
	}

	if req.Feedback != nil && req.Feedback.NeedsRewrite {
		rules = append(rules, "- The current SQL fails to execute at all. You must emit REWRITE_QUERY to fix it; DDL actions are forbidden until the SQL is valid.")
	}

	if !req.HypoAvailable {
		rules = append(rules, "- Hypothetical index support is unavailable; do not emit TEST_INDEX.")
	}

	return strings.Join(rules, "\n")
}
