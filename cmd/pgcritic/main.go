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

// pgcritic evaluates the query-repair agent against a JSON-lines benchmark
// file and writes a scored report.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms/openai"

	pgcritic "github.com/pgcritic/pgcritic"
	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/eval"
	"github.com/pgcritic/pgcritic/llm"
	"github.com/pgcritic/pgcritic/schema"
)

type evalFlags struct {
	dataset     string
	dsn         string
	output      string
	configPath  string
	schemaFile  string
	instanceMap string

	limit    int
	category string
	metric   string
	smoke    bool

	workers       int
	maxIterations int
	minIterations int
	deterministic bool

	model   string
	baseURL string

	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pgcritic",
		Short:         "Autonomous PostgreSQL query repair and optimization",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newEvalCmd())
	return root
}

func newEvalCmd() *cobra.Command {
	flags := &evalFlags{}

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the agent over a benchmark task file and score the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.dataset, "dataset", "", "path to the JSON-lines task file (required)")
	f.StringVar(&flags.dsn, "dsn", "", "connection template; {db_id} is replaced per task")
	f.StringVar(&flags.output, "output", "report.json", "path for the final report")
	f.StringVar(&flags.configPath, "config", "", "optional YAML config file")
	f.StringVar(&flags.schemaFile, "schema-file", "", "JSON-lines preprocess-schema dumps, used when live introspection fails")
	f.StringVar(&flags.instanceMap, "instance-map", "", "JSON-lines instance_id to db_id mapping for records without a db_id")
	f.IntVar(&flags.limit, "limit", 0, "evaluate only the first N tasks (0 = all)")
	f.StringVar(&flags.category, "category", "", "evaluate only tasks of this category")
	f.StringVar(&flags.metric, "metric", "", "force one metric for every task (soft-ex, tcv, qep)")
	f.BoolVar(&flags.smoke, "smoke", false, fmt.Sprintf("smoke run: first %d tasks only", eval.SmokeSize))
	f.IntVar(&flags.workers, "workers", 0, "worker-pool size")
	f.IntVar(&flags.maxIterations, "max-iterations", 0, "iteration ceiling per task")
	f.IntVar(&flags.minIterations, "min-iterations", 0, "iteration floor before the agent may stop")
	f.BoolVar(&flags.deterministic, "deterministic", false, "produce feedback without model calls")
	f.StringVar(&flags.model, "model", "gpt-4o", "model name for the planner")
	f.StringVar(&flags.baseURL, "base-url", "", "override the model API base URL")
	f.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cobra.CheckErr(cmd.MarkFlagRequired("dataset"))

	return cmd
}

// runEval is the whole pipeline: config, client, engine, tasks, harness.
// Task-level failures are scored, not returned; only setup problems exit
// non-zero.
func runEval(flags *evalFlags) error {
	cfg, err := buildConfig(flags)
	if err != nil {
		return err
	}
	pgcritic.SetupLogging(cfg.LogLevel)

	client, err := buildClient(flags, cfg)
	if err != nil {
		return err
	}
	engine := pgcritic.New(client, cfg)

	if flags.schemaFile != "" {
		engine.Schemas, err = schema.LoadPreprocessSchemas(flags.schemaFile)
		if err != nil {
			return fmt.Errorf("cannot load schema file: %w", err)
		}
	}
	var instances schema.InstanceMap
	if flags.instanceMap != "" {
		instances, err = schema.LoadInstanceMap(flags.instanceMap)
		if err != nil {
			return fmt.Errorf("cannot load instance map: %w", err)
		}
	}

	tasks, err := eval.LoadTasks(flags.dataset, instances)
	if err != nil {
		return fmt.Errorf("cannot load tasks: %w", err)
	}
	tasks = eval.FilterCategory(tasks, critic.Category(flags.category))
	if flags.smoke {
		tasks = eval.Smoke(tasks)
	}
	tasks = eval.Limit(tasks, flags.limit)
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks selected from %s", flags.dataset)
	}

	harness := eval.NewHarness(engine, flags.dataset, flags.output)
	harness.MetricOverride = eval.Metric(flags.metric)
	if flags.metric != "" {
		if _, err := eval.SelectMetric(critic.CategoryQuery, harness.MetricOverride); err != nil {
			return err
		}
	}

	// SIGINT/SIGTERM stop admitting tasks; in-flight tasks finish and the
	// report still gets written.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := harness.Run(ctx, tasks)
	if err != nil {
		return err
	}
	logrus.Infof("report written to %s", flags.output)
	fmt.Printf("%d/%d tasks succeeded (%.1f%%), mean score %.3f\n",
		report.Aggregate.Succeeded, report.TotalTasks,
		report.Aggregate.SuccessRate*100, report.Aggregate.MeanScore)
	return nil
}

func buildConfig(flags *evalFlags) (*pgcritic.Config, error) {
	cfg := pgcritic.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := pgcritic.LoadConfig(flags.configPath)
		if err != nil {
			return nil, fmt.Errorf("cannot load config: %w", err)
		}
		cfg = loaded
	}

	if flags.dsn != "" {
		cfg.DSNTemplate = flags.dsn
	}
	if flags.workers > 0 {
		cfg.Workers = flags.workers
	}
	if flags.maxIterations > 0 {
		cfg.MaxIterations = flags.maxIterations
	}
	if flags.minIterations > 0 {
		cfg.MinIterations = flags.minIterations
	}
	if flags.deterministic {
		cfg.Deterministic = true
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	return cfg, nil
}

// buildClient constructs the langchaingo-backed model client. The API key
// comes from OPENAI_API_KEY, as the provider expects; any OpenAI-compatible
// endpoint works through --base-url.
func buildClient(flags *evalFlags, cfg *pgcritic.Config) (llm.Client, error) {
	opts := []openai.Option{openai.WithModel(flags.model)}
	if flags.baseURL != "" {
		opts = append(opts, openai.WithBaseURL(flags.baseURL))
	}
	// The planner needs a model even in deterministic mode; deterministic
	// only turns off model-phrased feedback.
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create model client: %w", err)
	}
	return llm.NewModelClient(model,
		llm.WithThinkingBudget(cfg.ThinkingBudget),
	), nil
}
