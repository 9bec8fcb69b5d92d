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

// Status is the translator's verdict on the current query.
type Status string

const (
	StatusPass    Status = "pass"
	StatusWarning Status = "warning"
	StatusFail    Status = "fail"
	StatusError   Status = "error"
)

// Priority ranks how urgently the suggestion should be applied.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Feedback is the agent-facing translation of a technical Report. It is
// produced on every Analyze phase and not persisted across iterations. Report
// carries the full technical detail for downstream grounding.
type Feedback struct {
	Status     Status   `json:"status"`
	Reason     string   `json:"reason"`
	Suggestion string   `json:"suggestion"`
	Priority   Priority `json:"priority"`
	// NeedsRewrite marks feedback about SQL that is invalid as written
	// (syntax errors, missing references); DDL actions cannot help until the
	// statement itself is repaired.
	NeedsRewrite bool    `json:"needs_rewrite,omitempty"`
	Report       *Report `json:"technical_analysis,omitempty"`
}

// NoAction is the suggestion used when nothing needs fixing.
const NoAction = "no action"

// Constraints bound what the translator considers acceptable.
type Constraints struct {
	MaxCost              float64 `yaml:"max_cost"`
	MaxTimeMS            float64 `yaml:"max_time_ms"`
	AnalyzeCostThreshold float64 `yaml:"analyze_cost_threshold"`
}

// DefaultConstraints mirrors the benchmark defaults.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxCost:              50000,
		MaxTimeMS:            30000,
		AnalyzeCostThreshold: 5000000,
	}
}
