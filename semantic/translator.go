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

// Package semantic converts a technical bottleneck report into the compact
// agent-facing Feedback. Two implementations share one contract: the
// deterministic translator for development and tests, and the LLM-backed one
// for production phrasing. Both are forbidden from inventing identifiers; the
// analyzer's canonical suggestion always wins.
package semantic

import (
	"fmt"

	"github.com/pgcritic/pgcritic/critic"
)

// Translator turns a report into agent-facing feedback.
type Translator interface {
	Translate(ctx *critic.Context, report *critic.Report, c critic.Constraints) (*critic.Feedback, error)
}

// Deterministic is the no-LLM translator. It derives every field from the
// report mechanically and is the reference behavior the LLM mode must match
// in schema.
type Deterministic struct{}

// NewDeterministic returns the rule-based translator.
func NewDeterministic() *Deterministic { return &Deterministic{} }

// Translate implements Translator. It never returns an error.
func (d *Deterministic) Translate(_ *critic.Context, report *critic.Report, c critic.Constraints) (*critic.Feedback, error) {
	fb := &critic.Feedback{Report: report}

	if report == nil {
		fb.Status = critic.StatusError
		fb.Reason = "no analysis available"
		fb.Suggestion = critic.NoAction
		fb.Priority = critic.PriorityLow
		return fb, nil
	}

	fb.Status = StatusOf(report, c)
	fb.Priority = priorityOf(report, fb.Status)
	fb.Suggestion = SuggestionOf(report)
	fb.Reason = reasonOf(report, c, fb.Status)
	return fb, nil
}

// StatusOf applies the status rule: fail on over-budget cost or any HIGH
// bottleneck, warning on MEDIUM/LOW only, pass on a clean report within
// budget.
func StatusOf(report *critic.Report, c critic.Constraints) critic.Status {
	overBudget := c.MaxCost > 0 && report.TotalCost > c.MaxCost
	overTime := c.MaxTimeMS > 0 && report.ExecutionMS > c.MaxTimeMS

	max, any := report.MaxSeverity()
	switch {
	case overBudget || overTime || (any && max == critic.SeverityHigh):
		return critic.StatusFail
	case any:
		return critic.StatusWarning
	default:
		return critic.StatusPass
	}
}

// SuggestionOf returns the canonical suggestion of the most severe
// bottleneck, verbatim.
func SuggestionOf(report *critic.Report) string {
	worst := report.Worst()
	if worst == nil || worst.Suggestion == "" {
		return critic.NoAction
	}
	return worst.Suggestion
}

func priorityOf(report *critic.Report, status critic.Status) critic.Priority {
	if status == critic.StatusPass {
		return critic.PriorityLow
	}
	max, any := report.MaxSeverity()
	if !any {
		return critic.PriorityHigh // over budget with a clean report
	}
	switch max {
	case critic.SeverityHigh:
		return critic.PriorityHigh
	case critic.SeverityMedium:
		return critic.PriorityMedium
	default:
		return critic.PriorityLow
	}
}

func reasonOf(report *critic.Report, c critic.Constraints, status critic.Status) string {
	if status == critic.StatusPass {
		if c.MaxCost > 0 {
			return fmt.Sprintf("plan is clean at cost %.1f, within budget %.0f", report.TotalCost, c.MaxCost)
		}
		return fmt.Sprintf("plan is clean at cost %.1f", report.TotalCost)
	}

	worst := report.Worst()
	if worst == nil {
		return fmt.Sprintf("total cost %.1f exceeds budget %.0f by %.1fx",
			report.TotalCost, c.MaxCost, report.TotalCost/c.MaxCost)
	}
	reason := worst.Reason
	if c.MaxCost > 0 && report.TotalCost > c.MaxCost {
		reason = fmt.Sprintf("%s; total cost %.1f exceeds budget %.0f", reason, report.TotalCost, c.MaxCost)
	}
	return reason
}

// ExplainFailure builds the error-status feedback for a failed EXPLAIN. The
// reason is expected to already carry any category-specific framing.
func ExplainFailure(reason string) *critic.Feedback {
	return &critic.Feedback{
		Status:     critic.StatusError,
		Reason:     reason,
		Suggestion: critic.NoAction,
		Priority:   critic.PriorityHigh,
	}
}

// StaticCheckOK builds the feedback for statement sets PostgreSQL cannot
// EXPLAIN (pure DDL). There is no plan to analyze; the statements passed
// static inspection and only the task intent can judge them further.
func StaticCheckOK(reason string) *critic.Feedback {
	return &critic.Feedback{
		Status:     critic.StatusWarning,
		Reason:     reason,
		Suggestion: critic.NoAction,
		Priority:   critic.PriorityLow,
	}
}

// SyntaxFailure builds the fail-status feedback used when the predicted query
// itself is broken and must be rewritten before any tuning makes sense.
func SyntaxFailure(reason string) *critic.Feedback {
	return &critic.Feedback{
		Status:       critic.StatusFail,
		Reason:       reason,
		Suggestion:   "rewrite the query to fix the reported error",
		Priority:     critic.PriorityHigh,
		NeedsRewrite: true,
	}
}
