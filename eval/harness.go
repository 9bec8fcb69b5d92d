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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	uuid "github.com/satori/go.uuid"

	pgcritic "github.com/pgcritic/pgcritic"
	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/pg"
	"github.com/pgcritic/pgcritic/plan"
)

// Harness dispatches tasks to a bounded worker pool, scores each outcome,
// and writes both the crash-recoverable intermediate log and the final
// report.
type Harness struct {
	engine  *pgcritic.Engine
	dataset string

	// MetricOverride forces one metric for every task when set.
	MetricOverride Metric

	intermediatePath string
	outputPath       string

	mu      sync.Mutex
	logFile *os.File
}

// NewHarness creates a harness around a configured engine.
func NewHarness(engine *pgcritic.Engine, dataset, outputPath string) *Harness {
	return &Harness{
		engine:           engine,
		dataset:          dataset,
		outputPath:       outputPath,
		intermediatePath: outputPath + ".partial",
	}
}

// Run evaluates every task and writes the final report. The returned report
// is complete even when individual tasks failed; only configuration-level
// problems return an error.
func (h *Harness) Run(ctx context.Context, tasks []*critic.Task) (*Report, error) {
	runID := uuid.NewV4().String()
	log := logrus.WithField("run", runID)
	log.Infof("evaluating %d tasks with %d workers", len(tasks), h.engine.Config.Workers)

	f, err := os.OpenFile(h.intermediatePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	h.logFile = f
	defer f.Close()

	start := time.Now()
	results := make([]*TaskResult, len(tasks))

	sem := make(chan struct{}, h.engine.Config.Workers)
	var wg sync.WaitGroup
	for i, task := range tasks {
		// A shutdown lets in-flight tasks finish but admits no new ones.
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, task *critic.Task) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = h.runTask(ctx, task)
			h.appendIntermediate(results[i])
			h.progress(results[i])
		}(i, task)
	}
	wg.Wait()

	// Tasks skipped by shutdown leave nil slots.
	final := make([]*TaskResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			final = append(final, r)
		}
	}

	report := &Report{
		Dataset:       h.dataset,
		TotalTasks:    len(final),
		TotalTimeSecs: time.Since(start).Seconds(),
		Aggregate:     AggregateResults(final),
		Results:       final,
	}
	if err := h.writeReport(report); err != nil {
		return report, err
	}
	log.Infof("done: %d/%d succeeded in %.1fs",
		report.Aggregate.Succeeded, report.TotalTasks, report.TotalTimeSecs)
	return report, nil
}

// runTask optimizes and scores one task. Every failure path produces a
// result record; a worker never aborts the pool.
func (h *Harness) runTask(ctx context.Context, task *critic.Task) (result *TaskResult) {
	cfg := h.engine.Config
	start := time.Now()

	metric, err := SelectMetric(task.Category, h.MetricOverride)
	if err != nil {
		metric = MetricSoftEx
	}
	result = &TaskResult{
		TaskID:   task.ID(),
		Database: task.DBID,
		Category: task.Category,
		Metric:   metric,
	}
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("task %s panicked: %v", task.ID(), r)
			result.Error = "internal error"
		}
		result.TimeSecs = time.Since(start).Seconds()
	}()

	db, err := pg.Open(cfg.DSNTemplate, task.DBID)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer db.Close()

	taskCtx, cancel := context.WithTimeout(ctx, cfg.TaskTimeout)
	defer cancel()
	cctx := critic.NewContext(taskCtx, critic.WithTask(task))

	agent := h.engine.NewAgent(db, task)
	sol := agent.Optimize(cctx)

	result.Success = sol.Success
	result.Reason = sol.Reason
	result.Iterations = sol.IterationCount()
	result.Actions = sol.ActionKinds()
	result.FinalQuery = sol.FinalQuery

	h.score(cctx, db, task, sol, result)
	return result
}

// score applies the task's metric to the agent's final query.
func (h *Harness) score(ctx *critic.Context, db *pg.DB, task *critic.Task, sol *critic.Solution, result *TaskResult) {
	predicted := pg.SplitStatements(sol.FinalQuery)
	runner := NewRunner(db, h.engine.Config.StatementTimeout)

	run, err := runner.Run(ctx, task, predicted)
	if err != nil {
		result.Error = err.Error()
		result.Success = false
		return
	}
	result.Run = run

	switch result.Metric {
	case MetricQEP:
		qep, err := h.qep(ctx, db, task, predicted)
		if err != nil {
			result.Error = err.Error()
		}
		result.QEP = &qep
		result.Score = qep.Score
		result.Success = qep.Pass
	case MetricTCV:
		result.Score = TCV(run, true)
		result.Success = result.Score >= 1
	default:
		result.Score = SoftEx(run.Predicted, run.Reference, run.PredictedOK)
		result.Success = result.Score >= 1
	}
}

// qep costs both queries. An EXPLAIN failure on either side is a metric
// failure: QEP sees a zero cost and scores it 0/fail, and the error is
// surfaced on the result.
func (h *Harness) qep(ctx *critic.Context, db *pg.DB, task *critic.Task, predicted []string) (QEPResult, error) {
	original, err := explainCost(ctx, db, task.IssueSQL)
	if err != nil {
		return QEP(0, 0), fmt.Errorf("cannot cost original query: %w", err)
	}
	after, err := explainCost(ctx, db, predicted)
	if err != nil {
		return QEP(original, 0), fmt.Errorf("cannot cost predicted query: %w", err)
	}
	return QEP(original, after), nil
}

func explainCost(ctx *critic.Context, db *pg.DB, stmts []string) (float64, error) {
	if len(stmts) == 0 {
		return 0, fmt.Errorf("no statements to cost")
	}
	raw, err := db.Explain(ctx, stmts[0])
	if err != nil {
		return 0, err
	}
	tree, err := plan.Decode(raw)
	if err != nil {
		return 0, err
	}
	return tree.TotalCost, nil
}

// appendIntermediate writes one record to the crash-recovery log. Writes
// are serialized through the mutex; readers may tail the file freely.
func (h *Harness) appendIntermediate(r *TaskResult) {
	blob, err := json.Marshal(r)
	if err != nil {
		logrus.WithError(err).Error("cannot marshal intermediate result")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.logFile.Write(append(blob, '\n')); err != nil {
		logrus.WithError(err).Error("cannot append intermediate result")
	}
}

func (h *Harness) progress(r *TaskResult) {
	logrus.WithFields(logrus.Fields{
		"task":    r.TaskID,
		"metric":  r.Metric,
		"score":   r.Score,
		"success": r.Success,
	}).Info("task finished")
}

// writeReport writes the final document atomically: full write to a temp
// file, then rename.
func (h *Harness) writeReport(report *Report) error {
	blob, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	tmp := h.outputPath + ".tmp"
	if err := os.WriteFile(tmp, blob, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, h.outputPath)
}
