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

// Package pgcritic repairs and optimizes buggy PostgreSQL workloads. The
// engine wires the plan analyzer, the semantic translator, and the planner
// into an agent that iterates Analyze, Plan, Act, Validate against a live
// database until the workload passes or the budget runs out.
package pgcritic

import (
	"context"

	"github.com/pgcritic/pgcritic/analyzer"
	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/executor"
	"github.com/pgcritic/pgcritic/llm"
	"github.com/pgcritic/pgcritic/pg"
	"github.com/pgcritic/pgcritic/planner"
	"github.com/pgcritic/pgcritic/schema"
	"github.com/pgcritic/pgcritic/semantic"
)

// Engine bundles the per-process subsystems. It is safe to share across
// workers; everything task-scoped lives on the Agent.
type Engine struct {
	Config     *Config
	Analyzer   *analyzer.Analyzer
	Translator semantic.Translator
	Planner    *planner.Planner

	// Schemas holds the benchmark's canonical schema dumps keyed by instance
	// id, used as prompt grounding when live introspection fails. Loaded once
	// at startup and shared read-only across workers.
	Schemas schema.PreprocessSchemas
}

// New creates an engine on the given model client. With cfg.Deterministic
// set, feedback is produced without model calls; the planner always needs
// the client.
func New(client llm.Client, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()

	var translator semantic.Translator
	if cfg.Deterministic {
		translator = semantic.NewDeterministic()
	} else {
		translator = semantic.NewLLM(client)
	}

	return &Engine{
		Config:     cfg,
		Analyzer:   analyzer.NewWithThresholds(cfg.Analyzer),
		Translator: translator,
		Planner:    planner.New(client),
	}
}

// NewAgent creates the task-scoped agent: one database handle, one schema
// oracle, one executor, one hypothetical-index prober.
func (e *Engine) NewAgent(db *pg.DB, task *critic.Task) *Agent {
	hypo := executor.NewProber(db)
	agent := &Agent{
		engine: e,
		task:   task,
		db:     db,
		oracle: schema.NewOracle(db, task.DBID, e.Config.SampleRows),
		exec:   executor.New(db.DSN(), e.Config.StatementTimeout, hypo),
		hypo:   hypo,
	}
	agent.runBatch = func(ctx context.Context, stmts []string) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
	return agent
}
