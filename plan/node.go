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

// Package plan decodes PostgreSQL EXPLAIN (FORMAT JSON) output into a typed
// node tree that the analyzer's detection rules traverse.
package plan

import "strings"

// Node is a single execution-plan node. Nodes form a rooted tree.
type Node struct {
	Type         string
	Relation     string
	Alias        string
	StartupCost  float64
	TotalCost    float64
	PlanRows     int64
	PlanWidth    int
	ActualRows   int64
	ActualLoops  int64
	ActualTimeMS float64
	Filter       string
	IndexCond    string
	HashCond     string
	MergeCond    string
	JoinFilter   string
	JoinType     string
	SortKeys     []string
	SortMethod   string
	SortSpaceKB  int64
	IndexName    string
	Children     []*Node
}

// Rows returns the best available cardinality for the node: actual rows when
// the plan was measured, planner estimate otherwise.
func (n *Node) Rows() int64 {
	if n.ActualRows > 0 {
		return n.ActualRows
	}
	return n.PlanRows
}

// IsScan reports whether the node reads a relation directly.
func (n *Node) IsScan() bool {
	return strings.HasSuffix(n.Type, "Scan") && n.Type != "Subquery Scan"
}

// IsSeqScan reports whether the node is a sequential scan. Parallel variants
// count: a parallel scan is its sequential equivalent for analysis purposes.
func (n *Node) IsSeqScan() bool {
	return n.Type == "Seq Scan" || n.Type == "Parallel Seq Scan"
}

// IsNestedLoop reports whether the node is a nested-loop join.
func (n *Node) IsNestedLoop() bool {
	return strings.Contains(n.Type, "Nested Loop")
}

// IsHashJoin reports whether the node is a hash join.
func (n *Node) IsHashJoin() bool {
	return strings.Contains(n.Type, "Hash Join")
}

// IsSort reports whether the node sorts its input.
func (n *Node) IsSort() bool {
	return n.Type == "Sort" || n.Type == "Incremental Sort"
}

// IsGather reports whether the node is a parallel gather wrapper. Gather
// nodes are transparent to analysis.
func (n *Node) IsGather() bool {
	return n.Type == "Gather" || n.Type == "Gather Merge"
}

// JoinCondition returns whichever join predicate the node carries.
func (n *Node) JoinCondition() string {
	switch {
	case n.HashCond != "":
		return n.HashCond
	case n.MergeCond != "":
		return n.MergeCond
	case n.JoinFilter != "":
		return n.JoinFilter
	case n.IndexCond != "":
		return n.IndexCond
	}
	return ""
}

// Inner returns the inner side of a join node, by convention the second
// child in PostgreSQL plans. Hash, Materialize, Memoize, and Gather wrappers
// are looked through so callers see the node doing the work. Returns nil for
// non-joins.
func (n *Node) Inner() *Node {
	if len(n.Children) < 2 {
		return nil
	}
	return skipWrappers(n.Children[1])
}

// Outer returns the outer side of a join node.
func (n *Node) Outer() *Node {
	if len(n.Children) == 0 {
		return nil
	}
	return skipWrappers(n.Children[0])
}

// Walk visits every node in post order. Gather wrappers are descended
// through like any other node; detection rules decide what to skip.
func (n *Node) Walk(visit func(*Node)) {
	if n == nil {
		return
	}
	for _, c := range n.Children {
		c.Walk(visit)
	}
	visit(n)
}

func skipGather(n *Node) *Node {
	for n != nil && n.IsGather() && len(n.Children) == 1 {
		n = n.Children[0]
	}
	return n
}

var wrapperTypes = map[string]struct{}{
	"Hash": {}, "Materialize": {}, "Memoize": {},
	"Gather": {}, "Gather Merge": {},
}

func skipWrappers(n *Node) *Node {
	for n != nil && len(n.Children) == 1 {
		if _, ok := wrapperTypes[n.Type]; !ok {
			break
		}
		n = n.Children[0]
	}
	return n
}

// Tree is a decoded EXPLAIN result: the root node plus top-level timings.
type Tree struct {
	Root        *Node
	TotalCost   float64
	ExecutionMS float64
	PlanningMS  float64
	Analyzed    bool
}

// EffectiveRoot returns the root with any transparent gather wrapper removed.
func (t *Tree) EffectiveRoot() *Node {
	return skipGather(t.Root)
}
