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

// Package analyzer turns a decoded EXPLAIN tree into an ordered bottleneck
// report with canonical index and statistics suggestions. Detection is a pure
// function of the tree: the same input always produces the same report.
package analyzer

import (
	"github.com/sirupsen/logrus"

	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/plan"
)

// Thresholds tune the detection rules.
type Thresholds struct {
	// SeqScanMinRows is the relation size above which a sequential scan is
	// flagged. 1000 is deliberately aggressive; raise toward 10000 to only
	// flag genuinely large relations.
	SeqScanMinRows int64 `yaml:"seq_scan_min_rows"`
	// CostRatio flags any non-root node whose total cost reaches this share
	// of the root cost.
	CostRatio float64 `yaml:"cost_significance_ratio"`
	// EstimateErrorRatio flags nodes where actual and estimated rows diverge
	// by more than this factor in either direction.
	EstimateErrorRatio float64 `yaml:"estimate_error_ratio"`
	// WorkMemKB is the working-memory budget used to predict disk spills for
	// sorts that were not measured.
	WorkMemKB int64 `yaml:"work_mem_kb"`
}

// DefaultThresholds returns the detection defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SeqScanMinRows:     1000,
		CostRatio:          0.7,
		EstimateErrorRatio: 5.0,
		WorkMemKB:          4096,
	}
}

// Rule is a named detection check applied to every node of the plan tree.
type Rule struct {
	Name  string
	Apply RuleFunc
}

// RuleFunc inspects a single node and may append bottlenecks to the report.
type RuleFunc func(a *Analyzer, t *plan.Tree, n *plan.Node, report *critic.Report)

// DefaultRules to apply when analyzing plan trees.
var DefaultRules = []Rule{
	{"seq_scan_large_table", seqScanLargeTable},
	{"filter_unindexed_column", filterOnUnindexedColumn},
	{"high_cost_node", highCostNode},
	{"estimate_error", estimateError},
	{"nested_loop_large_inner", nestedLoopLargeInner},
	{"external_sort", externalSort},
	{"missing_join_index", missingJoinIndex},
}

// Analyzer applies detection rules to plan trees.
type Analyzer struct {
	Thresholds Thresholds
	Rules      []Rule
	Debug      bool
}

// New creates an Analyzer with the default rules and thresholds.
func New() *Analyzer {
	return &Analyzer{Thresholds: DefaultThresholds(), Rules: DefaultRules}
}

// NewWithThresholds creates an Analyzer with custom thresholds.
func NewWithThresholds(th Thresholds) *Analyzer {
	return &Analyzer{Thresholds: th, Rules: DefaultRules}
}

// Log prints a debug message when the analyzer is in debug mode.
func (a *Analyzer) Log(msg string, args ...interface{}) {
	if a != nil && a.Debug {
		logrus.Debugf(msg, args...)
	}
}

// Analyze traverses the tree once in post order and applies every rule to
// every node. Malformed input yields an empty report with a warning; Analyze
// never fails.
func (a *Analyzer) Analyze(t *plan.Tree) *critic.Report {
	report := &critic.Report{Bottlenecks: []critic.Bottleneck{}}
	if t == nil || t.Root == nil {
		report.Warning = "no plan to analyze"
		return report
	}

	report.TotalCost = t.TotalCost
	report.ExecutionMS = t.ExecutionMS
	report.PlanningMS = t.PlanningMS
	report.HasActualRows = t.Analyzed

	root := t.EffectiveRoot()
	if root == nil {
		report.Warning = "empty plan tree"
		return report
	}

	root.Walk(func(n *plan.Node) {
		if n.IsGather() {
			// Gather wrappers are bookkeeping, not work.
			return
		}
		for _, rule := range a.Rules {
			before := len(report.Bottlenecks)
			rule.Apply(a, t, n, report)
			if a.Debug && len(report.Bottlenecks) > before {
				a.Log("%s flagged %s node", rule.Name, n.Type)
			}
		}
	})

	report.Sort()
	return report
}
