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
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgcritic/pgcritic/critic"
)

func TestSelectMetric(t *testing.T) {
	m, err := SelectMetric(critic.CategoryEfficiency, "")
	require.NoError(t, err)
	require.Equal(t, MetricQEP, m)

	m, err = SelectMetric(critic.CategoryManagement, "")
	require.NoError(t, err)
	require.Equal(t, MetricTCV, m)

	m, err = SelectMetric(critic.CategoryQuery, "")
	require.NoError(t, err)
	require.Equal(t, MetricSoftEx, m)

	m, err = SelectMetric(critic.CategoryPersonalization, "")
	require.NoError(t, err)
	require.Equal(t, MetricSoftEx, m)

	// Override wins over category.
	m, err = SelectMetric(critic.CategoryEfficiency, MetricSoftEx)
	require.NoError(t, err)
	require.Equal(t, MetricSoftEx, m)

	_, err = SelectMetric(critic.CategoryQuery, "bogus")
	require.Error(t, err)
	require.True(t, critic.ErrUnknownMetric.Is(err))
}

func TestSoftExOrderInsensitive(t *testing.T) {
	predicted := &ResultSet{
		Columns: []string{"id", "name"},
		Rows: [][]interface{}{
			{int64(2), "bob"},
			{int64(1), "alice"},
		},
	}
	reference := &ResultSet{
		Columns: []string{"id", "name"},
		Rows: [][]interface{}{
			{int64(1), "alice"},
			{int64(2), "bob"},
		},
	}
	require.Equal(t, 1.0, SoftEx(predicted, reference, true))
}

func TestSoftExFloatToleranceAndNull(t *testing.T) {
	predicted := &ResultSet{Rows: [][]interface{}{
		{float64(0.30000000001), nil},
	}}
	reference := &ResultSet{Rows: [][]interface{}{
		{float64(0.3), nil},
	}}
	require.Equal(t, 1.0, SoftEx(predicted, reference, true))

	// NULL never equals a value.
	predicted = &ResultSet{Rows: [][]interface{}{{nil}}}
	reference = &ResultSet{Rows: [][]interface{}{{"x"}}}
	require.Equal(t, 0.0, SoftEx(predicted, reference, true))
}

func TestSoftExNumericTextEquivalence(t *testing.T) {
	// Drivers disagree on whether numerics come back as bytes or ints.
	predicted := &ResultSet{Rows: [][]interface{}{{[]byte("42")}}}
	reference := &ResultSet{Rows: [][]interface{}{{int64(42)}}}
	require.Equal(t, 1.0, SoftEx(predicted, reference, true))
}

func TestSoftExCardinalityMismatch(t *testing.T) {
	predicted := &ResultSet{Rows: [][]interface{}{{int64(1)}}}
	reference := &ResultSet{Rows: [][]interface{}{{int64(1)}, {int64(1)}}}
	require.Equal(t, 0.0, SoftEx(predicted, reference, true))
}

func TestSoftExNoReference(t *testing.T) {
	require.Equal(t, 1.0, SoftEx(nil, nil, true))
	require.Equal(t, 0.0, SoftEx(nil, nil, false))
}

func TestQEP(t *testing.T) {
	res := QEP(1000, 100)
	require.InDelta(t, 0.1, res.CostRatio, 1e-9)
	require.InDelta(t, 0.9, res.Score, 1e-9)
	require.True(t, res.Pass)

	res = QEP(1000, 950)
	require.False(t, res.Pass)
	require.InDelta(t, 0.05, res.Score, 1e-9)

	// Regression scores zero, never negative.
	res = QEP(1000, 2000)
	require.Equal(t, 0.0, res.Score)
	require.False(t, res.Pass)

	// Exactly 10% improvement passes.
	res = QEP(1000, 900)
	require.True(t, res.Pass)

	res = QEP(0, 100)
	require.False(t, res.Pass)
}

func TestQEPUncostablePredicted(t *testing.T) {
	// A predicted query that cannot be costed must never score as a free
	// improvement.
	res := QEP(1000, 0)
	require.False(t, res.Pass)
	require.Equal(t, 0.0, res.Score)
	require.True(t, math.IsInf(res.CostRatio, 1))

	res = QEP(1000, -1)
	require.False(t, res.Pass)
	require.Equal(t, 0.0, res.Score)
}

func TestTCV(t *testing.T) {
	run := &RunResult{PreprocessOK: true, PredictedOK: true, CleanupOK: true, WorkflowComplete: true}
	require.Equal(t, 1.0, TCV(run, true))
	require.Equal(t, 0.0, TCV(run, false))
	require.Equal(t, 0.0, TCV(&RunResult{}, true))
	require.Equal(t, 0.0, TCV(nil, true))
}

func TestPassThreshold(t *testing.T) {
	require.True(t, PassThreshold(MetricSoftEx, 1))
	require.False(t, PassThreshold(MetricSoftEx, 0.99))
	require.True(t, PassThreshold(MetricQEP, 0.1))
	require.False(t, PassThreshold(MetricQEP, 0.09))
}

func TestAggregateResults(t *testing.T) {
	results := []*TaskResult{
		{TaskID: "1", Database: "tpch", Category: critic.CategoryEfficiency, Metric: MetricQEP,
			Success: true, Score: 0.8, Iterations: 2, TimeSecs: 10,
			Actions: []string{"CREATE_INDEX", "DONE"}},
		{TaskID: "2", Database: "tpch", Category: critic.CategoryQuery, Metric: MetricSoftEx,
			Success: false, Score: 0, Iterations: 5, TimeSecs: 30,
			Actions: []string{"REWRITE_QUERY", "FAILED"}},
		{TaskID: "3", Database: "financial", Category: critic.CategoryQuery, Metric: MetricSoftEx,
			Success: true, Score: 1, Iterations: 1, TimeSecs: 5,
			Actions: []string{"REWRITE_QUERY", "DONE"}},
	}

	agg := AggregateResults(results)
	require.Equal(t, 3, agg.Total)
	require.Equal(t, 2, agg.Succeeded)
	require.InDelta(t, 2.0/3.0, agg.SuccessRate, 1e-9)
	require.InDelta(t, 0.6, agg.MeanScore, 1e-9)
	require.InDelta(t, 8.0/3.0, agg.MeanIterations, 1e-9)
	require.InDelta(t, 15, agg.MeanTimeSecs, 1e-9)

	require.Equal(t, 2, agg.ByCategory["Query"].Total)
	require.InDelta(t, 0.5, agg.ByCategory["Query"].SuccessRate, 1e-9)
	require.Equal(t, 2, agg.ByDatabase["tpch"].Total)
	require.Equal(t, 1, agg.ByMetric["qep"].Total)

	require.Equal(t, 2, agg.ActionHistogram["REWRITE_QUERY"])
	require.Equal(t, 2, agg.ActionHistogram["DONE"])
	require.Equal(t, 1, agg.ActionHistogram["CREATE_INDEX"])
	require.Equal(t, 1, agg.ActionHistogram["FAILED"])
}

func TestAggregateEmpty(t *testing.T) {
	agg := AggregateResults(nil)
	require.Equal(t, 0, agg.Total)
	require.Equal(t, 0.0, agg.SuccessRate)
}
