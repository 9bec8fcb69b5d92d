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

import "fmt"

// Outcome classifies the cost movement caused by a single action.
type Outcome string

const (
	OutcomeImproved  Outcome = "improved"
	OutcomeRegressed Outcome = "regressed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeError     Outcome = "error"
)

// IterationRecord is the compressed memory of one loop iteration. Summary is
// kept to a handful of tokens so a full record fits in a prompt line.
type IterationRecord struct {
	Ordinal    int        `json:"iteration"`
	Kind       ActionKind `json:"action"`
	Summary    string     `json:"summary"`
	CostBefore float64    `json:"cost_before"`
	CostAfter  float64    `json:"cost_after"`
	DeltaPct   float64    `json:"cost_delta_pct"`
	Outcome    Outcome    `json:"outcome"`
	Insight    string     `json:"insight,omitempty"`
}

// String renders the record the way the planner prompt consumes it:
// "Iter n: CREATE_INDEX(idx_users_email) -> -42.1%, improved".
func (r IterationRecord) String() string {
	s := fmt.Sprintf("Iter %d: %s(%s) -> %+.1f%%, %s", r.Ordinal, r.Kind, r.Summary, r.DeltaPct, r.Outcome)
	if r.Insight != "" {
		s += ", " + r.Insight
	}
	return s
}

// Memory is the bounded iteration history owned by the agent controller.
// Only the most recent records are retained; older ones are discarded.
type Memory struct {
	limit   int
	records []IterationRecord
	total   int
}

// NewMemory creates a memory bounded to keep records.
func NewMemory(keep int) *Memory {
	if keep < 1 {
		keep = 1
	}
	return &Memory{limit: keep}
}

// Add appends a record, discarding the oldest once the bound is exceeded.
func (m *Memory) Add(r IterationRecord) {
	m.total++
	m.records = append(m.records, r)
	if len(m.records) > m.limit {
		m.records = m.records[len(m.records)-m.limit:]
	}
}

// Recent returns the retained records, oldest first.
func (m *Memory) Recent() []IterationRecord {
	out := make([]IterationRecord, len(m.records))
	copy(out, m.records)
	return out
}

// Total returns how many records were ever added.
func (m *Memory) Total() int { return m.total }

// Stagnating reports whether the retained records show no meaningful cost
// movement: every delta under 1% in magnitude, or an average improvement of
// less than half a percent per record.
func (m *Memory) Stagnating() bool {
	if len(m.records) < m.limit {
		return false
	}
	allTiny := true
	var sum float64
	for _, r := range m.records {
		sum += r.DeltaPct
		if r.DeltaPct > 1 || r.DeltaPct < -1 {
			allTiny = false
		}
	}
	avg := sum / float64(len(m.records))
	return allTiny || avg > -0.5
}

// Ineffective reports whether every retained record regressed, stalled, or
// errored. This catches indexes the planner refuses to use.
func (m *Memory) Ineffective() bool {
	if len(m.records) < m.limit {
		return false
	}
	for _, r := range m.records {
		if r.Outcome == OutcomeImproved {
			return false
		}
	}
	return true
}

// Solution is the terminal outcome of one task.
type Solution struct {
	InitialQuery string            `json:"initial_query"`
	FinalQuery   string            `json:"final_query"`
	Success      bool              `json:"success"`
	Reason       string            `json:"reason"`
	Actions      []Action          `json:"actions"`
	Iterations   []IterationRecord `json:"iterations"`
}

// ActionKinds returns the ordered kind list, used by the aggregate histogram.
func (s *Solution) ActionKinds() []string {
	kinds := make([]string, len(s.Actions))
	for i, a := range s.Actions {
		kinds[i] = string(a.Kind)
	}
	return kinds
}

// IterationCount counts non-terminal actions.
func (s *Solution) IterationCount() int {
	n := 0
	for _, a := range s.Actions {
		if !a.Terminal() {
			n++
		}
	}
	return n
}
