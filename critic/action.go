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

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// ActionKind tags the variants of an Action.
type ActionKind string

const (
	ActionCreateIndex  ActionKind = "CREATE_INDEX"
	ActionTestIndex    ActionKind = "TEST_INDEX"
	ActionRewriteQuery ActionKind = "REWRITE_QUERY"
	ActionRunAnalyze   ActionKind = "RUN_ANALYZE"
	ActionDone         ActionKind = "DONE"
	ActionFailed       ActionKind = "FAILED"
)

// Action is a tagged variant describing the next step the planner chose.
// Each kind defines exactly the fields it requires: DDL for CreateIndex,
// TestIndex and RunAnalyze, NewQuery for RewriteQuery, and neither for the
// terminal kinds.
type Action struct {
	Kind       ActionKind `json:"action"`
	DDL        string     `json:"ddl,omitempty"`
	NewQuery   string     `json:"new_query,omitempty"`
	Reasoning  string     `json:"reasoning"`
	Confidence float64    `json:"confidence"`
}

// Terminal reports whether this action ends the optimization loop.
func (a Action) Terminal() bool {
	return a.Kind == ActionDone || a.Kind == ActionFailed
}

// MutatesDatabase reports whether executing this action can change the
// database. TestIndex counts: an approved test is followed by a real index.
func (a Action) MutatesDatabase() bool {
	switch a.Kind {
	case ActionCreateIndex, ActionTestIndex, ActionRunAnalyze:
		return true
	}
	return false
}

var (
	createIndexRE = regexp.MustCompile(`(?i)CREATE\s+(?:UNIQUE\s+)?INDEX\s+(?:IF\s+NOT\s+EXISTS\s+)?(\w+)`)
	analyzeRE     = regexp.MustCompile(`(?i)ANALYZE\s+(\w+)`)
)

// Summary returns a compact description of the action for iteration memory,
// a handful of tokens rather than the full DDL.
func (a Action) Summary() string {
	switch a.Kind {
	case ActionCreateIndex, ActionTestIndex:
		if m := createIndexRE.FindStringSubmatch(a.DDL); m != nil {
			return m[1]
		}
		return "index"
	case ActionRunAnalyze:
		if m := analyzeRE.FindStringSubmatch(a.DDL); m != nil {
			return m[1]
		}
		return "table"
	case ActionRewriteQuery:
		return "query"
	}
	return string(a.Kind)
}

// NormalizedDDL returns a canonical key for duplicate detection, such as
// "INDEX:idx_users_email" or "ANALYZE:users".
func (a Action) NormalizedDDL() string {
	if m := createIndexRE.FindStringSubmatch(a.DDL); m != nil {
		return "INDEX:" + strings.ToLower(m[1])
	}
	if m := analyzeRE.FindStringSubmatch(a.DDL); m != nil {
		return "ANALYZE:" + strings.ToLower(m[1])
	}
	ddl := strings.ToLower(strings.TrimSpace(a.DDL))
	if len(ddl) > 100 {
		ddl = ddl[:100]
	}
	return ddl
}

// validate coerces an action that is missing a required field into Failed.
func (a Action) validate() Action {
	switch a.Kind {
	case ActionCreateIndex, ActionTestIndex, ActionRunAnalyze:
		if strings.TrimSpace(a.DDL) == "" {
			return Action{
				Kind:      ActionFailed,
				Reasoning: ErrActionField.New(a.Kind, "ddl").Error(),
			}
		}
	case ActionRewriteQuery:
		if strings.TrimSpace(a.NewQuery) == "" {
			return Action{
				Kind:      ActionFailed,
				Reasoning: ErrActionField.New(a.Kind, "new_query").Error(),
			}
		}
	case ActionDone, ActionFailed:
	default:
		return Action{
			Kind:      ActionFailed,
			Reasoning: ErrActionParse.New("unknown action kind " + string(a.Kind)).Error(),
		}
	}
	if a.Confidence < 0 {
		a.Confidence = 0
	}
	if a.Confidence > 1 {
		a.Confidence = 1
	}
	return a
}

var (
	fencedJSONRE = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSONRE   = regexp.MustCompile(`(?s)\{.*\}`)
	actionKindRE = regexp.MustCompile(`(?i)\b(CREATE_INDEX|TEST_INDEX|REWRITE_QUERY|RUN_ANALYZE|DONE|FAILED)\b`)
)

// actionJSON accepts both "action" and "type" for the kind field and a
// confidence encoded as either number or string.
type actionJSON struct {
	Action     string          `json:"action"`
	Type       string          `json:"type"`
	DDL        string          `json:"ddl"`
	NewQuery   string          `json:"new_query"`
	Reasoning  string          `json:"reasoning"`
	Confidence json.RawMessage `json:"confidence"`
}

// ParseAction extracts an Action from a planner response. It tries, in order,
// a fenced JSON block, a bare JSON object, and finally a regex over the raw
// text that recovers only the action kind. Responses that defeat all three
// tiers become Failed.
func ParseAction(response string) Action {
	response = strings.TrimSpace(response)
	if response == "" {
		return Action{Kind: ActionFailed, Reasoning: "planning error: empty response"}
	}

	if m := fencedJSONRE.FindStringSubmatch(response); m != nil {
		if a, ok := decodeActionJSON(m[1]); ok {
			return a.validate()
		}
	}

	if m := bareJSONRE.FindString(response); m != "" {
		if a, ok := decodeActionJSON(m); ok {
			return a.validate()
		}
	}

	if m := actionKindRE.FindString(response); m != "" {
		kind := ActionKind(strings.ToUpper(m))
		if kind == ActionDone || kind == ActionFailed {
			return Action{Kind: kind, Reasoning: "recovered from unstructured response", Confidence: 0.5}
		}
		// Non-terminal kinds are unusable without their payload fields.
		return Action{Kind: ActionFailed, Reasoning: "planning error: " + string(kind) + " without payload"}
	}

	return Action{Kind: ActionFailed, Reasoning: "planning error: unparseable response"}
}

func decodeActionJSON(blob string) (Action, bool) {
	var raw actionJSON
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return Action{}, false
	}
	kind := raw.Action
	if kind == "" {
		kind = raw.Type
	}
	if kind == "" {
		return Action{}, false
	}

	confidence := 1.0
	if len(raw.Confidence) > 0 {
		var f float64
		if err := json.Unmarshal(raw.Confidence, &f); err == nil {
			confidence = f
		} else {
			var s string
			if err := json.Unmarshal(raw.Confidence, &s); err == nil {
				if v, perr := strconv.ParseFloat(s, 64); perr == nil {
					confidence = v
				}
			}
		}
	}

	reasoning := raw.Reasoning
	if reasoning == "" {
		reasoning = "no reasoning provided"
	}

	return Action{
		Kind:       ActionKind(strings.ToUpper(strings.TrimSpace(kind))),
		DDL:        raw.DDL,
		NewQuery:   raw.NewQuery,
		Reasoning:  reasoning,
		Confidence: confidence,
	}, true
}
