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

package eval

import (
	"github.com/pgcritic/pgcritic/critic"
)

// TaskResult is one scored task, one line of the intermediate log and one
// element of the final report.
type TaskResult struct {
	TaskID     string          `json:"task_id"`
	Database   string          `json:"database"`
	Category   critic.Category `json:"category"`
	Success    bool            `json:"success"`
	Metric     Metric          `json:"metric"`
	Score      float64         `json:"score"`
	Iterations int             `json:"iterations"`
	TimeSecs   float64         `json:"time_seconds"`
	Actions    []string        `json:"actions"`
	FinalQuery string          `json:"final_query"`
	Reason     string          `json:"reason"`
	Error      string          `json:"error,omitempty"`

	// Details carries metric-specific data: the qep costs or the runner's
	// step flags.
	QEP *QEPResult `json:"qep,omitempty"`
	Run *RunResult `json:"run,omitempty"`
}

// Breakdown is a per-group slice of the aggregate.
type Breakdown struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	SuccessRate float64 `json:"success_rate"`
	MeanScore   float64 `json:"mean_score"`
}

// Aggregate summarizes a full run.
type Aggregate struct {
	Total          int                   `json:"total"`
	Succeeded      int                   `json:"succeeded"`
	SuccessRate    float64               `json:"success_rate"`
	MeanScore      float64               `json:"mean_score"`
	MeanIterations float64               `json:"mean_iterations"`
	MeanTimeSecs   float64               `json:"mean_time_seconds"`
	ByCategory     map[string]*Breakdown `json:"by_category"`
	ByDatabase     map[string]*Breakdown `json:"by_database"`
	ByMetric       map[string]*Breakdown `json:"by_metric"`
	// ActionHistogram counts action kinds across every task, a cheap view
	// of what the agent actually does.
	ActionHistogram map[string]int `json:"action_histogram"`
}

// Report is the final output document.
type Report struct {
	Dataset       string        `json:"dataset"`
	TotalTasks    int           `json:"total_tasks"`
	TotalTimeSecs float64       `json:"total_time_seconds"`
	Aggregate     *Aggregate    `json:"aggregate"`
	Results       []*TaskResult `json:"results"`
}

// Aggregate computes the summary over a result list.
func AggregateResults(results []*TaskResult) *Aggregate {
	agg := &Aggregate{
		ByCategory:      map[string]*Breakdown{},
		ByDatabase:      map[string]*Breakdown{},
		ByMetric:        map[string]*Breakdown{},
		ActionHistogram: map[string]int{},
	}

	var sumScore, sumIters, sumTime float64
	for _, r := range results {
		agg.Total++
		if r.Success {
			agg.Succeeded++
		}
		sumScore += r.Score
		sumIters += float64(r.Iterations)
		sumTime += r.TimeSecs

		bump(agg.ByCategory, string(r.Category), r)
		bump(agg.ByDatabase, r.Database, r)
		bump(agg.ByMetric, string(r.Metric), r)
		for _, kind := range r.Actions {
			agg.ActionHistogram[kind]++
		}
	}

	if agg.Total > 0 {
		n := float64(agg.Total)
		agg.SuccessRate = float64(agg.Succeeded) / n
		agg.MeanScore = sumScore / n
		agg.MeanIterations = sumIters / n
		agg.MeanTimeSecs = sumTime / n
	}
	for _, m := range []map[string]*Breakdown{agg.ByCategory, agg.ByDatabase, agg.ByMetric} {
		for _, b := range m {
			if b.Total > 0 {
				b.SuccessRate = float64(b.Succeeded) / float64(b.Total)
				b.MeanScore /= float64(b.Total)
			}
		}
	}
	return agg
}

func bump(m map[string]*Breakdown, key string, r *TaskResult) {
	b := m[key]
	if b == nil {
		b = &Breakdown{}
		m[key] = b
	}
	b.Total++
	if r.Success {
		b.Succeeded++
	}
	// MeanScore accumulates the raw sum here; AggregateResults divides at
	// the end.
	b.MeanScore += r.Score
}
