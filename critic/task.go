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
	"fmt"
	"strings"
)

// Category classifies a benchmark task and selects the metric used to score it.
type Category string

const (
	CategoryQuery           Category = "Query"
	CategoryManagement      Category = "Management"
	CategoryPersonalization Category = "Personalization"
	CategoryEfficiency      Category = "Efficiency"
)

// Task is a single benchmark task: one or more buggy SQL statements plus the
// natural-language intent they were written to satisfy.
type Task struct {
	InstanceID int      `json:"instance_id"`
	DBID       string   `json:"db_id"`
	Intent     string   `json:"query"`
	IssueSQL   []string `json:"issue_sql"`
	Preprocess []string `json:"preprocess_sql,omitempty"`
	Cleanup    []string `json:"clean_up_sql,omitempty"`
	Category   Category `json:"category"`
	Efficiency bool     `json:"efficiency"`
	// Solution is the reference SQL used for result comparison when present.
	Solution string `json:"sol_sql,omitempty"`
}

// taskJSON accepts the on-disk record, including the legacy buggy_sql field.
type taskJSON struct {
	InstanceID int      `json:"instance_id"`
	DBID       string   `json:"db_id"`
	Intent     string   `json:"query"`
	IssueSQL   []string `json:"issue_sql"`
	BuggySQL   string   `json:"buggy_sql"`
	Preprocess []string `json:"preprocess_sql"`
	Cleanup    []string `json:"clean_up_sql"`
	Category   string   `json:"category"`
	Efficiency bool     `json:"efficiency"`
	Solution   string   `json:"sol_sql"`
}

// UnmarshalJSON decodes a task line. The legacy buggy_sql field is accepted as
// a single-element issue_sql. Unknown fields are ignored.
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw taskJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	issue := raw.IssueSQL
	if len(issue) == 0 && raw.BuggySQL != "" {
		issue = []string{raw.BuggySQL}
	}

	*t = Task{
		InstanceID: raw.InstanceID,
		DBID:       raw.DBID,
		Intent:     raw.Intent,
		IssueSQL:   issue,
		Preprocess: raw.Preprocess,
		Cleanup:    raw.Cleanup,
		Category:   Category(raw.Category),
		Efficiency: raw.Efficiency,
		Solution:   raw.Solution,
	}
	return nil
}

// ID returns a printable task identifier.
func (t *Task) ID() string {
	return fmt.Sprintf("%d", t.InstanceID)
}

// Validate checks the task invariants: at least one issue statement, a
// database, and category consistency with the efficiency flag.
func (t *Task) Validate() error {
	if len(t.IssueSQL) == 0 {
		return ErrTaskInvalid.New(t.ID(), "no issue_sql statements")
	}
	if t.DBID == "" {
		return ErrTaskInvalid.New(t.ID(), "no db_id")
	}
	switch t.Category {
	case CategoryQuery, CategoryManagement, CategoryPersonalization:
	case CategoryEfficiency:
		if !t.Efficiency {
			return ErrTaskInvalid.New(t.ID(), "category Efficiency requires efficiency=true")
		}
	case "":
		return ErrTaskInvalid.New(t.ID(), "no category")
	default:
		return ErrTaskInvalid.New(t.ID(), fmt.Sprintf("unknown category %q", t.Category))
	}
	return nil
}

// MultiStatement reports whether the task ships more than one buggy statement.
func (t *Task) MultiStatement() bool {
	return len(t.IssueSQL) > 1
}

// JoinedSQL returns the issue statements as a single semicolon-joined string.
func (t *Task) JoinedSQL() string {
	return strings.Join(t.IssueSQL, ";\n")
}
