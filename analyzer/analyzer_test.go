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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/plan"
)

func TestExtractColumns(t *testing.T) {
	testCases := []struct {
		filter string
		cols   []string
		conn   Connective
	}{
		{"(status = 'active'::text)", []string{"status"}, ConnectiveNone},
		{"((lineitem.l_comment)::text = 'rare'::text)", []string{"l_comment"}, ConnectiveNone},
		{"((status = 'active'::text) AND (created_at > '2024-01-01'::date))",
			[]string{"status", "created_at"}, ConnectiveAnd},
		{"((email ~~ '%@example.com'::text) OR (phone IS NOT NULL))",
			[]string{"email", "phone"}, ConnectiveOr},
		{"(l_quantity > '40'::numeric)", []string{"l_quantity"}, ConnectiveNone},
		{"((orders.o_totalprice >= 100::numeric) AND (orders.o_totalprice <= 500::numeric))",
			[]string{"o_totalprice"}, ConnectiveNone},
		{"(upper((name)::text) = 'X'::text)", nil, ConnectiveNone},
		{"", nil, ConnectiveNone},
	}

	for _, tt := range testCases {
		t.Run(tt.filter, func(t *testing.T) {
			cols, conn := ExtractColumns(tt.filter)
			require.Equal(t, tt.cols, cols)
			require.Equal(t, tt.conn, conn)
		})
	}
}

func TestCleanIdentifier(t *testing.T) {
	require.Equal(t, "l_comment", CleanIdentifier("(lineitem.l_comment)::text"))
	require.Equal(t, "status", CleanIdentifier(`"status"`))
	require.Equal(t, "", CleanIdentifier("upper(name)"))
	require.Equal(t, "", CleanIdentifier("NULL"))
}

func TestCleanSortKey(t *testing.T) {
	require.Equal(t, "created_at", CleanSortKey("users.created_at DESC NULLS LAST"))
	require.Equal(t, "name", CleanSortKey("name"))
	require.Equal(t, "total", CleanSortKey("total ASC"))
}

func TestSuggestIndex(t *testing.T) {
	require.Equal(t,
		"CREATE INDEX idx_users_email ON users(email);",
		SuggestIndex("users", []string{"email"}, ConnectiveNone))
	require.Equal(t,
		"CREATE INDEX idx_users_composite ON users(status, created_at);",
		SuggestIndex("users", []string{"status", "created_at"}, ConnectiveAnd))
	require.Equal(t,
		"CREATE INDEX idx_users_email ON users(email); CREATE INDEX idx_users_phone ON users(phone);",
		SuggestIndex("users", []string{"email", "phone"}, ConnectiveOr))
	require.Equal(t, "", SuggestIndex("users", nil, ConnectiveNone))
}

func seqScanTree(rows int64, filter string) *plan.Tree {
	root := &plan.Node{
		Type:      "Seq Scan",
		Relation:  "users",
		TotalCost: 1800,
		PlanRows:  rows,
		Filter:    filter,
	}
	return &plan.Tree{Root: root, TotalCost: root.TotalCost}
}

func TestSeqScanLargeTable(t *testing.T) {
	a := New()
	report := a.Analyze(seqScanTree(50000, "(email = 'a@b.c'::text)"))
	require.Len(t, report.Bottlenecks, 1)

	b := report.Bottlenecks[0]
	require.Equal(t, critic.SeqScanLargeTable, b.Kind)
	require.Equal(t, critic.SeverityHigh, b.Severity)
	require.Equal(t, "users", b.Table)
	require.Equal(t, []string{"email"}, b.Columns)
	require.Equal(t, "CREATE INDEX idx_users_email ON users(email);", b.Suggestion)
}

func TestSeqScanBelowThreshold(t *testing.T) {
	a := New()
	report := a.Analyze(seqScanTree(500, "(email = 'a@b.c'::text)"))
	require.Empty(t, report.Bottlenecks)
}

func TestFilterOnUnindexedColumn(t *testing.T) {
	scan := &plan.Node{
		Type:      "Seq Scan",
		Relation:  "users",
		TotalCost: 800,
		PlanRows:  500,
		Filter:    "(email = 'a@b.c'::text)",
	}
	root := &plan.Node{Type: "Aggregate", TotalCost: 1000, Children: []*plan.Node{scan}}
	tree := &plan.Tree{Root: root, TotalCost: 1000}

	report := New().Analyze(tree)
	var found *critic.Bottleneck
	for i := range report.Bottlenecks {
		if report.Bottlenecks[i].Kind == critic.FilterOnUnindexedColumn {
			found = &report.Bottlenecks[i]
		}
	}
	require.NotNil(t, found)
	require.Equal(t, critic.SeverityMedium, found.Severity)
	require.Equal(t, "users", found.Table)
	require.Equal(t, []string{"email"}, found.Columns)
	require.Equal(t, "CREATE INDEX idx_users_email ON users(email);", found.Suggestion)
}

func TestFilterOnUnindexedColumnNeedsDominantCost(t *testing.T) {
	scan := &plan.Node{
		Type:      "Seq Scan",
		Relation:  "users",
		TotalCost: 50,
		PlanRows:  500,
		Filter:    "(email = 'a@b.c'::text)",
	}
	root := &plan.Node{Type: "Aggregate", TotalCost: 1000, Children: []*plan.Node{scan}}
	tree := &plan.Tree{Root: root, TotalCost: 1000}

	report := New().Analyze(tree)
	for _, b := range report.Bottlenecks {
		require.NotEqual(t, critic.FilterOnUnindexedColumn, b.Kind)
	}
}

func TestSeqScanWithoutFilterSuggestsAnalyze(t *testing.T) {
	a := New()
	report := a.Analyze(seqScanTree(50000, ""))
	require.Len(t, report.Bottlenecks, 1)
	require.Equal(t, "RUN_ANALYZE users", report.Bottlenecks[0].Suggestion)
}

func TestHighCostNodeExemptsRoot(t *testing.T) {
	child := &plan.Node{Type: "Index Scan", Relation: "orders", TotalCost: 900, PlanRows: 10}
	root := &plan.Node{Type: "Aggregate", TotalCost: 1000, Children: []*plan.Node{child}}
	tree := &plan.Tree{Root: root, TotalCost: 1000}

	report := New().Analyze(tree)
	require.Len(t, report.Bottlenecks, 1)
	require.Equal(t, critic.HighCostNode, report.Bottlenecks[0].Kind)
	require.Equal(t, "orders", report.Bottlenecks[0].Table)
	require.InDelta(t, 90, report.Bottlenecks[0].CostPct, 0.01)
}

func TestEstimateError(t *testing.T) {
	root := &plan.Node{
		Type:       "Seq Scan",
		Relation:   "events",
		TotalCost:  100,
		PlanRows:   10,
		ActualRows: 500,
	}
	tree := &plan.Tree{Root: root, TotalCost: 100, Analyzed: true}

	report := New().Analyze(tree)
	var found *critic.Bottleneck
	for i := range report.Bottlenecks {
		if report.Bottlenecks[i].Kind == critic.EstimateError {
			found = &report.Bottlenecks[i]
		}
	}
	require.NotNil(t, found)
	require.Equal(t, critic.SeverityLow, found.Severity)
	require.Equal(t, "RUN_ANALYZE events", found.Suggestion)
}

func TestNestedLoopLargeInner(t *testing.T) {
	inner := &plan.Node{Type: "Seq Scan", Relation: "orders", TotalCost: 400, PlanRows: 20000}
	outer := &plan.Node{Type: "Seq Scan", Relation: "customer", TotalCost: 50, PlanRows: 100}
	root := &plan.Node{
		Type:       "Nested Loop",
		TotalCost:  9000,
		JoinFilter: "(orders.o_custkey = customer.c_custkey)",
		Children:   []*plan.Node{outer, inner},
	}
	tree := &plan.Tree{Root: root, TotalCost: 9000}

	report := New().Analyze(tree)
	var found *critic.Bottleneck
	for i := range report.Bottlenecks {
		if report.Bottlenecks[i].Kind == critic.NestedLoopLarge {
			found = &report.Bottlenecks[i]
		}
	}
	require.NotNil(t, found)
	require.Equal(t, "orders", found.Table)
	require.Equal(t, "CREATE INDEX idx_orders_o_custkey ON orders(o_custkey);", found.Suggestion)
}

func TestExternalSortSpilled(t *testing.T) {
	scan := &plan.Node{Type: "Seq Scan", Relation: "logs", TotalCost: 100, PlanRows: 900}
	root := &plan.Node{
		Type:        "Sort",
		TotalCost:   5000,
		PlanRows:    900,
		SortKeys:    []string{"logs.created_at DESC"},
		SortMethod:  "external merge",
		SortSpaceKB: 81920,
		Children:    []*plan.Node{scan},
	}
	tree := &plan.Tree{Root: root, TotalCost: 5000}

	report := New().Analyze(tree)
	require.Len(t, report.Bottlenecks, 1)
	b := report.Bottlenecks[0]
	require.Equal(t, critic.ExternalSort, b.Kind)
	require.Equal(t, "logs", b.Table)
	require.Equal(t, "CREATE INDEX idx_logs_created_at ON logs(created_at);", b.Suggestion)
}

func TestExternalSortPredictedSpill(t *testing.T) {
	scan := &plan.Node{Type: "Seq Scan", Relation: "logs", TotalCost: 100, PlanRows: 500}
	root := &plan.Node{
		Type:      "Sort",
		TotalCost: 5000,
		PlanRows:  1 << 20,
		PlanWidth: 64,
		SortKeys:  []string{"id"},
		Children:  []*plan.Node{scan},
	}
	tree := &plan.Tree{Root: root, TotalCost: 5000}

	report := New().Analyze(tree)
	require.Len(t, report.Bottlenecks, 1)
	require.Equal(t, critic.ExternalSort, report.Bottlenecks[0].Kind)
}

func TestMissingJoinIndexComposite(t *testing.T) {
	inner := &plan.Node{
		Type:      "Seq Scan",
		Relation:  "orders",
		TotalCost: 200,
		PlanRows:  500,
		Filter:    "(status = 'open'::text)",
	}
	hash := &plan.Node{Type: "Hash", TotalCost: 210, Children: []*plan.Node{inner}}
	outer := &plan.Node{Type: "Seq Scan", Relation: "customer", TotalCost: 50, PlanRows: 100}
	root := &plan.Node{
		Type:      "Hash Join",
		TotalCost: 800,
		HashCond:  "(customer.c_custkey = orders.o_custkey)",
		Children:  []*plan.Node{outer, hash},
	}
	tree := &plan.Tree{Root: root, TotalCost: 800}

	// The Hash node between the join and the scan must be transparent.
	report := New().Analyze(tree)
	for _, b := range report.Bottlenecks {
		if b.Kind == critic.MissingJoinIndex {
			require.Equal(t, "orders", b.Table)
			require.Equal(t, []string{"o_custkey", "status"}, b.Columns)
			require.Equal(t, "CREATE INDEX idx_orders_composite ON orders(o_custkey, status);", b.Suggestion)
			return
		}
	}
	t.Fatal("expected a MissingJoinIndex bottleneck")
}

func TestAnalyzeNilTree(t *testing.T) {
	a := New()
	report := a.Analyze(nil)
	require.NotNil(t, report)
	require.Empty(t, report.Bottlenecks)
	require.NotEmpty(t, report.Warning)

	report = a.Analyze(&plan.Tree{})
	require.NotEmpty(t, report.Warning)
}

func TestAnalyzeDeterministic(t *testing.T) {
	build := func() *plan.Tree {
		inner := &plan.Node{Type: "Seq Scan", Relation: "orders", TotalCost: 8000, PlanRows: 20000,
			Filter: "(status = 'open'::text)"}
		outer := &plan.Node{Type: "Seq Scan", Relation: "customer", TotalCost: 50, PlanRows: 100}
		root := &plan.Node{Type: "Nested Loop", TotalCost: 10000,
			JoinFilter: "(orders.o_custkey = customer.c_custkey)",
			Children:   []*plan.Node{outer, inner}}
		return &plan.Tree{Root: root, TotalCost: 10000}
	}

	a := New()
	first := a.Analyze(build())
	second := a.Analyze(build())
	require.Equal(t, first, second)
}

func TestReportSortedBySeverity(t *testing.T) {
	inner := &plan.Node{Type: "Seq Scan", Relation: "orders", TotalCost: 8000, PlanRows: 20000,
		Filter: "(status = 'open'::text)"}
	outer := &plan.Node{Type: "Seq Scan", Relation: "customer", TotalCost: 50, PlanRows: 100}
	root := &plan.Node{Type: "Nested Loop", TotalCost: 10000,
		JoinFilter: "(orders.o_custkey = customer.c_custkey)",
		Children:   []*plan.Node{outer, inner}}
	tree := &plan.Tree{Root: root, TotalCost: 10000}

	report := New().Analyze(tree)
	require.True(t, len(report.Bottlenecks) >= 2)
	for i := 1; i < len(report.Bottlenecks); i++ {
		require.True(t, report.Bottlenecks[i-1].Severity >= report.Bottlenecks[i].Severity)
	}
}
