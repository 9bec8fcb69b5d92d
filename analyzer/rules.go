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

package analyzer

import (
	"fmt"
	"strings"

	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/plan"
)

// seqScanLargeTable flags sequential scans over relations larger than the
// configured minimum. The suggestion indexes the filter columns when the scan
// carries a filter, and refreshes statistics otherwise since an unfiltered
// full scan gains nothing from an index.
func seqScanLargeTable(a *Analyzer, t *plan.Tree, n *plan.Node, report *critic.Report) {
	if !n.IsSeqScan() || n.Relation == "" {
		return
	}
	rows := n.Rows()
	if rows < a.Thresholds.SeqScanMinRows {
		return
	}

	cols, conn := ExtractColumns(n.Filter)
	suggestion := SuggestIndex(n.Relation, cols, conn)
	if suggestion == "" {
		suggestion = SuggestAnalyze(n.Relation)
	}

	report.Bottlenecks = append(report.Bottlenecks, critic.Bottleneck{
		Kind:       critic.SeqScanLargeTable,
		Severity:   critic.SeverityHigh,
		SeverityS:  critic.SeverityHigh.String(),
		Table:      n.Relation,
		Columns:    cols,
		Rows:       rows,
		Cost:       n.TotalCost,
		CostPct:    costPct(n, t),
		Reason:     fmt.Sprintf("sequential scan on %s reads %d rows", n.Relation, rows),
		Suggestion: suggestion,
	})
}

// filterOnUnindexedColumn flags filtered sequential scans too small for
// seqScanLargeTable whose cost still dominates the plan. A small relation
// scanned for every row of an expensive filter is an index miss, not a table
// size problem, so it gets its own kind and a medium severity.
func filterOnUnindexedColumn(a *Analyzer, t *plan.Tree, n *plan.Node, report *critic.Report) {
	if !n.IsSeqScan() || n.Relation == "" || n.Filter == "" {
		return
	}
	if n.Rows() >= a.Thresholds.SeqScanMinRows {
		return
	}
	if t.TotalCost <= 0 || n == t.EffectiveRoot() {
		return
	}
	if n.TotalCost/t.TotalCost < a.Thresholds.CostRatio {
		return
	}
	cols, conn := ExtractColumns(n.Filter)
	if len(cols) == 0 {
		return
	}

	report.Bottlenecks = append(report.Bottlenecks, critic.Bottleneck{
		Kind:       critic.FilterOnUnindexedColumn,
		Severity:   critic.SeverityMedium,
		SeverityS:  critic.SeverityMedium.String(),
		Table:      n.Relation,
		Columns:    cols,
		Rows:       n.Rows(),
		Cost:       n.TotalCost,
		CostPct:    costPct(n, t),
		Reason:     fmt.Sprintf("%s is filtered on %s without an index", n.Relation, strings.Join(cols, ", ")),
		Suggestion: SuggestIndex(n.Relation, cols, conn),
	})
}

// highCostNode flags any non-root node whose cost dominates the plan. The
// root always carries the full cost, so it is exempt; flagging it would make
// every plan look broken.
func highCostNode(a *Analyzer, t *plan.Tree, n *plan.Node, report *critic.Report) {
	if t.TotalCost <= 0 || n == t.EffectiveRoot() {
		return
	}
	pct := n.TotalCost / t.TotalCost
	if pct < a.Thresholds.CostRatio {
		return
	}
	report.Bottlenecks = append(report.Bottlenecks, critic.Bottleneck{
		Kind:       critic.HighCostNode,
		Severity:   critic.SeverityMedium,
		SeverityS:  critic.SeverityMedium.String(),
		Table:      n.Relation,
		Cost:       n.TotalCost,
		CostPct:    pct * 100,
		Reason:     fmt.Sprintf("%s node accounts for %.0f%% of total plan cost", n.Type, pct*100),
		Suggestion: suggestForDominantNode(n),
	})
}

func suggestForDominantNode(n *plan.Node) string {
	if n.Relation != "" {
		if cols, conn := ExtractColumns(n.Filter); len(cols) > 0 {
			return SuggestIndex(n.Relation, cols, conn)
		}
		return SuggestAnalyze(n.Relation)
	}
	if rel := firstRelation(n); rel != "" {
		return SuggestAnalyze(rel)
	}
	return critic.NoAction
}

// estimateError flags nodes where the planner's row estimate diverges from
// the measured row count by more than the configured factor in either
// direction. Only fires on measured plans.
func estimateError(a *Analyzer, t *plan.Tree, n *plan.Node, report *critic.Report) {
	if n.PlanRows <= 0 || n.ActualRows <= 0 || n.Relation == "" {
		return
	}
	ratio := float64(n.ActualRows) / float64(n.PlanRows)
	limit := a.Thresholds.EstimateErrorRatio
	if ratio <= limit && ratio >= 1/limit {
		return
	}
	report.Bottlenecks = append(report.Bottlenecks, critic.Bottleneck{
		Kind:      critic.EstimateError,
		Severity:  critic.SeverityLow,
		SeverityS: critic.SeverityLow.String(),
		Table:     n.Relation,
		Rows:      n.ActualRows,
		Cost:      n.TotalCost,
		Reason: fmt.Sprintf("planner estimated %d rows for %s but got %d (%.1fx off)",
			n.PlanRows, n.Relation, n.ActualRows, maxRatio(ratio)),
		Suggestion: SuggestAnalyze(n.Relation),
	})
}

func maxRatio(r float64) float64 {
	if r < 1 {
		return 1 / r
	}
	return r
}

// nestedLoopLargeInner flags nested-loop joins whose inner side is rescanned
// over a large row set. The remedy indexes the inner relation's join column
// so each probe becomes an index lookup.
func nestedLoopLargeInner(a *Analyzer, t *plan.Tree, n *plan.Node, report *critic.Report) {
	if !n.IsNestedLoop() {
		return
	}
	inner := n.Inner()
	if inner == nil || inner.Rows() < a.Thresholds.SeqScanMinRows {
		return
	}
	rel := inner.Relation
	if rel == "" {
		rel = firstRelation(inner)
	}
	if rel == "" {
		return
	}

	col := JoinColumnFor(n.JoinCondition(), rel, inner.Alias)
	var cols []string
	suggestion := SuggestAnalyze(rel)
	if col != "" {
		cols = []string{col}
		suggestion = SuggestIndex(rel, cols, ConnectiveNone)
	}

	report.Bottlenecks = append(report.Bottlenecks, critic.Bottleneck{
		Kind:       critic.NestedLoopLarge,
		Severity:   critic.SeverityHigh,
		SeverityS:  critic.SeverityHigh.String(),
		Table:      rel,
		Columns:    cols,
		Rows:       inner.Rows(),
		Cost:       n.TotalCost,
		CostPct:    costPct(n, t),
		Reason:     fmt.Sprintf("nested loop rescans %d rows of %s per outer row", inner.Rows(), rel),
		Suggestion: suggestion,
	})
}

// externalSort flags sorts that spilled to disk, or that are predicted to
// spill based on estimated data volume against the work_mem budget. The
// remedy is an index on the sort keys so the sort disappears entirely.
func externalSort(a *Analyzer, t *plan.Tree, n *plan.Node, report *critic.Report) {
	if !n.IsSort() {
		return
	}
	spilled := strings.Contains(strings.ToLower(n.SortMethod), "external") ||
		strings.Contains(strings.ToLower(n.SortMethod), "disk")
	if !spilled && n.SortMethod == "" {
		estKB := n.PlanRows * int64(n.PlanWidth) / 1024
		spilled = estKB > a.Thresholds.WorkMemKB
	}
	if !spilled {
		return
	}

	rel := firstRelation(n)
	var cols []string
	for _, key := range n.SortKeys {
		if c := CleanSortKey(key); c != "" {
			cols = append(cols, c)
		}
	}
	suggestion := SuggestIndex(rel, cols, ConnectiveAnd)
	if suggestion == "" {
		if rel == "" {
			return
		}
		suggestion = SuggestAnalyze(rel)
	}

	report.Bottlenecks = append(report.Bottlenecks, critic.Bottleneck{
		Kind:       critic.ExternalSort,
		Severity:   critic.SeverityMedium,
		SeverityS:  critic.SeverityMedium.String(),
		Table:      rel,
		Columns:    cols,
		Rows:       n.Rows(),
		Cost:       n.TotalCost,
		CostPct:    costPct(n, t),
		Reason:     fmt.Sprintf("sort of %d rows exceeds working memory (%s)", n.Rows(), sortDetail(n)),
		Suggestion: suggestion,
	})
}

func sortDetail(n *plan.Node) string {
	if n.SortMethod != "" {
		if n.SortSpaceKB > 0 {
			return fmt.Sprintf("%s, %dkB", n.SortMethod, n.SortSpaceKB)
		}
		return n.SortMethod
	}
	return "predicted spill"
}

// missingJoinIndex flags joins whose inner side is a filtered sequential
// scan. The composite suggestion covers the join column first and the filter
// columns after it so a single index serves both the probe and the filter.
func missingJoinIndex(a *Analyzer, t *plan.Tree, n *plan.Node, report *critic.Report) {
	if !n.IsHashJoin() && !n.IsNestedLoop() {
		return
	}
	inner := n.Inner()
	if inner == nil || !inner.IsSeqScan() || inner.Relation == "" {
		return
	}
	if inner.Filter == "" && n.JoinCondition() == "" {
		return
	}

	var cols []string
	seen := map[string]struct{}{}
	add := func(c string) {
		if c == "" {
			return
		}
		if _, dup := seen[c]; dup {
			return
		}
		seen[c] = struct{}{}
		cols = append(cols, c)
	}
	add(JoinColumnFor(n.JoinCondition(), inner.Relation, inner.Alias))
	filterCols, _ := ExtractColumns(inner.Filter)
	for _, c := range filterCols {
		add(c)
	}
	if len(cols) == 0 {
		return
	}

	report.Bottlenecks = append(report.Bottlenecks, critic.Bottleneck{
		Kind:       critic.MissingJoinIndex,
		Severity:   critic.SeverityHigh,
		SeverityS:  critic.SeverityHigh.String(),
		Table:      inner.Relation,
		Columns:    cols,
		Rows:       inner.Rows(),
		Cost:       n.TotalCost,
		CostPct:    costPct(n, t),
		Reason:     fmt.Sprintf("%s probes an unindexed scan of %s", n.Type, inner.Relation),
		Suggestion: SuggestIndex(inner.Relation, cols, ConnectiveAnd),
	})
}

func costPct(n *plan.Node, t *plan.Tree) float64 {
	if t.TotalCost <= 0 {
		return 0
	}
	return n.TotalCost / t.TotalCost * 100
}

// firstRelation returns the relation of the nearest descendant scan.
func firstRelation(n *plan.Node) string {
	if n == nil {
		return ""
	}
	if n.Relation != "" {
		return n.Relation
	}
	for _, c := range n.Children {
		if rel := firstRelation(c); rel != "" {
			return rel
		}
	}
	return ""
}
