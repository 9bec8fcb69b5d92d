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
	"encoding/json"

	"github.com/spf13/cast"

	"github.com/pgcritic/pgcritic/critic"
)

// Decode parses EXPLAIN (FORMAT JSON) output. The top level may be the usual
// singleton array or a bare object; both yield the same tree.
func Decode(raw []byte) (*Tree, error) {
	var top interface{}
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, critic.ErrPlanParse.New(err.Error())
	}
	return DecodeValue(top)
}

// DecodeValue parses an already-unmarshalled EXPLAIN document.
func DecodeValue(top interface{}) (*Tree, error) {
	root, ok := explainRoot(top)
	if !ok {
		return nil, critic.ErrPlanParse.New("no Plan object at top level")
	}

	planObj, ok := root["Plan"].(map[string]interface{})
	if !ok {
		return nil, critic.ErrPlanParse.New("missing Plan key")
	}

	node := decodeNode(planObj)
	tree := &Tree{
		Root:        node,
		TotalCost:   node.TotalCost,
		ExecutionMS: cast.ToFloat64(root["Execution Time"]),
		PlanningMS:  cast.ToFloat64(root["Planning Time"]),
	}
	tree.Analyzed = tree.ExecutionMS > 0 || node.ActualLoops > 0
	return tree, nil
}

func explainRoot(top interface{}) (map[string]interface{}, bool) {
	switch v := top.(type) {
	case []interface{}:
		if len(v) == 0 {
			return nil, false
		}
		m, ok := v[0].(map[string]interface{})
		return m, ok
	case map[string]interface{}:
		return v, true
	}
	return nil, false
}

func decodeNode(obj map[string]interface{}) *Node {
	n := &Node{
		Type:         cast.ToString(obj["Node Type"]),
		Relation:     cast.ToString(obj["Relation Name"]),
		Alias:        cast.ToString(obj["Alias"]),
		StartupCost:  cast.ToFloat64(obj["Startup Cost"]),
		TotalCost:    cast.ToFloat64(obj["Total Cost"]),
		PlanRows:     cast.ToInt64(obj["Plan Rows"]),
		PlanWidth:    cast.ToInt(obj["Plan Width"]),
		ActualRows:   cast.ToInt64(obj["Actual Rows"]),
		ActualLoops:  cast.ToInt64(obj["Actual Loops"]),
		ActualTimeMS: cast.ToFloat64(obj["Actual Total Time"]),
		Filter:       cast.ToString(obj["Filter"]),
		IndexCond:    cast.ToString(obj["Index Cond"]),
		HashCond:     cast.ToString(obj["Hash Cond"]),
		MergeCond:    cast.ToString(obj["Merge Cond"]),
		JoinFilter:   cast.ToString(obj["Join Filter"]),
		JoinType:     cast.ToString(obj["Join Type"]),
		SortMethod:   cast.ToString(obj["Sort Method"]),
		IndexName:    cast.ToString(obj["Index Name"]),
	}

	if keys, ok := obj["Sort Key"].([]interface{}); ok {
		for _, k := range keys {
			n.SortKeys = append(n.SortKeys, cast.ToString(k))
		}
	}
	if space, ok := obj["Sort Space Used"]; ok {
		n.SortSpaceKB = cast.ToInt64(space)
	}

	if children, ok := obj["Plans"].([]interface{}); ok {
		for _, c := range children {
			if childObj, ok := c.(map[string]interface{}); ok {
				n.Children = append(n.Children, decodeNode(childObj))
			}
		}
	}
	return n
}
