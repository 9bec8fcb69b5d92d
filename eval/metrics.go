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
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/pgcritic/pgcritic/critic"
)

// Metric names the scoring function applied to a task.
type Metric string

const (
	// MetricSoftEx scores result-set equivalence, order-insensitive.
	MetricSoftEx Metric = "soft-ex"
	// MetricTCV scores workflow completion of management tasks.
	MetricTCV Metric = "tcv"
	// MetricQEP scores plan-cost improvement of efficiency tasks.
	MetricQEP Metric = "qep"
)

// floatTolerance is the epsilon for numeric cell comparison in soft-ex.
const floatTolerance = 1e-6

// QEPPassRatio is the cost ratio at or below which an efficiency task
// passes: predicted cost must be at most 90% of the original.
const QEPPassRatio = 0.9

// SelectMetric maps a task category to its official metric. A non-empty
// override wins when it names a known metric.
func SelectMetric(category critic.Category, override Metric) (Metric, error) {
	if override != "" {
		switch override {
		case MetricSoftEx, MetricTCV, MetricQEP:
			return override, nil
		}
		return "", critic.ErrUnknownMetric.New(string(override))
	}
	switch category {
	case critic.CategoryEfficiency:
		return MetricQEP, nil
	case critic.CategoryManagement:
		return MetricTCV, nil
	default:
		return MetricSoftEx, nil
	}
}

// ResultSet is a captured query result.
type ResultSet struct {
	Columns []string
	Rows    [][]interface{}
}

// SoftEx compares the predicted result against the reference as unordered
// multisets. Floats compare within tolerance; NULL equals NULL. Returns 1 on
// equivalence, 0 otherwise. A nil reference means no reference solution was
// available, in which case pure execution success scores 1.
func SoftEx(predicted, reference *ResultSet, predictedOK bool) float64 {
	if reference == nil {
		if predictedOK {
			return 1
		}
		return 0
	}
	if predicted == nil || len(predicted.Rows) != len(reference.Rows) {
		return 0
	}

	used := make([]bool, len(reference.Rows))
	for _, prow := range predicted.Rows {
		found := false
		for j, rrow := range reference.Rows {
			if used[j] || !rowsEqual(prow, rrow) {
				continue
			}
			used[j] = true
			found = true
			break
		}
		if !found {
			return 0
		}
	}
	return 1
}

func rowsEqual(a, b []interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !valuesEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// valuesEqual compares two cells. Drivers return a mix of int64, float64,
// []byte, string, bool, time.Time, and nil; comparison goes through a
// canonical form so 1 equals "1" equals 1.0.
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	af, aIsNum := toFloat(a)
	bf, bIsNum := toFloat(b)
	if aIsNum && bIsNum {
		return math.Abs(af-bf) <= floatTolerance
	}

	at, aIsTime := a.(time.Time)
	bt, bIsTime := b.(time.Time)
	if aIsTime && bIsTime {
		return at.Equal(bt)
	}

	return toString(a) == toString(b)
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int64:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(v)
	}
}

// TCV scores a management workflow: 1 iff preprocess, predicted, and cleanup
// all completed and every post-condition held.
func TCV(run *RunResult, postConditionsOK bool) float64 {
	if run != nil && run.WorkflowComplete && postConditionsOK {
		return 1
	}
	return 0
}

// QEPResult carries the measured costs behind a qep score.
type QEPResult struct {
	OriginalCost  float64 `json:"original_cost"`
	PredictedCost float64 `json:"predicted_cost"`
	CostRatio     float64 `json:"cost_ratio"`
	Score         float64 `json:"score"`
	Pass          bool    `json:"pass"`
}

// QEP compares the predicted query's estimated cost against the original's.
// Score is max(0, 1 - ratio); pass requires at least a 10% improvement. A
// non-positive cost on either side means that query could not be costed at
// all, which scores zero rather than as a free improvement.
func QEP(originalCost, predictedCost float64) QEPResult {
	res := QEPResult{OriginalCost: originalCost, PredictedCost: predictedCost}
	if originalCost <= 0 || predictedCost <= 0 {
		res.CostRatio = math.Inf(1)
		return res
	}
	res.CostRatio = predictedCost / originalCost
	res.Score = math.Max(0, 1-res.CostRatio)
	res.Pass = res.CostRatio <= QEPPassRatio
	return res
}

// PassThreshold reports whether a score passes for the given metric.
func PassThreshold(metric Metric, score float64) bool {
	switch metric {
	case MetricQEP:
		return score >= 1-QEPPassRatio
	default:
		return score >= 1
	}
}
