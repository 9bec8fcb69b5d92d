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

package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgcritic/pgcritic/critic"
)

const explainJSON = `[
  {
    "Plan": {
      "Node Type": "Nested Loop",
      "Startup Cost": 0.0,
      "Total Cost": 9000.5,
      "Plan Rows": 120,
      "Plan Width": 48,
      "Join Filter": "(o.o_custkey = c.c_custkey)",
      "Plans": [
        {
          "Node Type": "Seq Scan",
          "Relation Name": "customer",
          "Alias": "c",
          "Total Cost": 50.0,
          "Plan Rows": 100,
          "Plan Width": 24
        },
        {
          "Node Type": "Seq Scan",
          "Relation Name": "orders",
          "Alias": "o",
          "Total Cost": 400.0,
          "Plan Rows": 20000,
          "Plan Width": 24,
          "Filter": "(o.o_totalprice > '100'::numeric)"
        }
      ]
    },
    "Planning Time": 0.21,
    "Execution Time": 153.4
  }
]`

func TestDecode(t *testing.T) {
	tree, err := Decode([]byte(explainJSON))
	require.NoError(t, err)

	require.Equal(t, 9000.5, tree.TotalCost)
	require.Equal(t, 153.4, tree.ExecutionMS)
	require.Equal(t, 0.21, tree.PlanningMS)
	require.True(t, tree.Analyzed)

	root := tree.Root
	require.Equal(t, "Nested Loop", root.Type)
	require.Len(t, root.Children, 2)
	require.Equal(t, "(o.o_custkey = c.c_custkey)", root.JoinCondition())

	inner := root.Inner()
	require.Equal(t, "orders", inner.Relation)
	require.Equal(t, "o", inner.Alias)
	require.Equal(t, int64(20000), inner.Rows())
	require.True(t, inner.IsSeqScan())
}

func TestDecodeBareObject(t *testing.T) {
	raw := `{"Plan": {"Node Type": "Seq Scan", "Relation Name": "t", "Total Cost": 10.0, "Plan Rows": 5}}`
	tree, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "t", tree.Root.Relation)
	require.False(t, tree.Analyzed)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.Error(t, err)
	require.True(t, critic.ErrPlanParse.Is(err))

	_, err = Decode([]byte("[]"))
	require.True(t, critic.ErrPlanParse.Is(err))

	_, err = Decode([]byte(`[{"NoPlan": true}]`))
	require.True(t, critic.ErrPlanParse.Is(err))
}

func TestWalkPostOrder(t *testing.T) {
	tree, err := Decode([]byte(explainJSON))
	require.NoError(t, err)

	var order []string
	tree.Root.Walk(func(n *Node) {
		order = append(order, n.Type)
	})
	require.Equal(t, []string{"Seq Scan", "Seq Scan", "Nested Loop"}, order)
}

func TestGatherTransparency(t *testing.T) {
	gather := &Node{Type: "Gather", Children: []*Node{
		{Type: "Parallel Seq Scan", Relation: "big"},
	}}
	tree := &Tree{Root: gather}
	require.Equal(t, "big", tree.EffectiveRoot().Relation)
	require.True(t, tree.EffectiveRoot().IsSeqScan())
}
