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

import "sort"

// Severity ranks how urgent a bottleneck is.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// BottleneckKind names the detection rule that produced a bottleneck.
type BottleneckKind string

const (
	SeqScanLargeTable       BottleneckKind = "SeqScanLargeTable"
	HighCostNode            BottleneckKind = "HighCostNode"
	EstimateError           BottleneckKind = "EstimateError"
	NestedLoopLarge         BottleneckKind = "NestedLoopLarge"
	ExternalSort            BottleneckKind = "ExternalSort"
	MissingJoinIndex        BottleneckKind = "MissingJoinIndex"
	FilterOnUnindexedColumn BottleneckKind = "FilterOnUnindexedColumn"
)

// Bottleneck is a localized performance issue found in a plan tree, together
// with the canonical remedy for it. Suggestion is always well-formed SQL (or a
// RUN_ANALYZE directive) built from identifiers that actually occur in the
// plan; downstream stages must prefer it over any free-text rephrasing.
type Bottleneck struct {
	Kind       BottleneckKind `json:"kind"`
	Severity   Severity       `json:"-"`
	SeverityS  string         `json:"severity"`
	Table      string         `json:"table,omitempty"`
	Columns    []string       `json:"columns,omitempty"`
	Rows       int64          `json:"rows,omitempty"`
	Cost       float64        `json:"cost,omitempty"`
	CostPct    float64        `json:"cost_percentage,omitempty"`
	Reason     string         `json:"reason"`
	Suggestion string         `json:"suggestion"`
}

// Report is the analyzer's full output for one EXPLAIN tree.
type Report struct {
	TotalCost     float64      `json:"total_cost"`
	ExecutionMS   float64      `json:"execution_time_ms,omitempty"`
	PlanningMS    float64      `json:"planning_time_ms,omitempty"`
	Bottlenecks   []Bottleneck `json:"bottlenecks"`
	Warning       string       `json:"warning,omitempty"`
	HasActualRows bool         `json:"-"`
}

// Sort orders bottlenecks by severity descending, then cost descending,
// which gives deterministic output for identical input trees.
func (r *Report) Sort() {
	sort.SliceStable(r.Bottlenecks, func(i, j int) bool {
		a, b := r.Bottlenecks[i], r.Bottlenecks[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		return a.Cost > b.Cost
	})
}

// Worst returns the most severe bottleneck, or nil when the report is clean.
func (r *Report) Worst() *Bottleneck {
	if len(r.Bottlenecks) == 0 {
		return nil
	}
	return &r.Bottlenecks[0]
}

// MaxSeverity returns the highest severity present in the report.
func (r *Report) MaxSeverity() (Severity, bool) {
	if len(r.Bottlenecks) == 0 {
		return SeverityLow, false
	}
	max := r.Bottlenecks[0].Severity
	for _, b := range r.Bottlenecks[1:] {
		if b.Severity > max {
			max = b.Severity
		}
	}
	return max, true
}
