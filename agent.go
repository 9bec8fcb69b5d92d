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

package pgcritic

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/executor"
	"github.com/pgcritic/pgcritic/internal/similartext"
	"github.com/pgcritic/pgcritic/pg"
	"github.com/pgcritic/pgcritic/plan"
	"github.com/pgcritic/pgcritic/planner"
	"github.com/pgcritic/pgcritic/schema"
	"github.com/pgcritic/pgcritic/semantic"
)

// deltaEpsilon guards the cost-delta division against zero baselines.
const deltaEpsilon = 1e-9

// deltaSignificantPct separates improved/regressed from unchanged.
const deltaSignificantPct = 5.0

type explainer interface {
	Explain(ctx context.Context, query string) ([]byte, error)
	ExplainAnalyze(ctx context.Context, query string, timeout time.Duration) ([]byte, error)
}

type actionExecutor interface {
	Execute(ctx *critic.Context, action critic.Action, queries []string) executor.Result
}

type schemaSource interface {
	Schema(ctx *critic.Context) (*schema.Schema, error)
	InvalidateIndexes()
}

type hypoChecker interface {
	Available(ctx context.Context) bool
}

// Agent drives the optimization loop for exactly one task.
type Agent struct {
	engine *Engine
	task   *critic.Task
	db     explainer
	oracle schemaSource
	exec   actionExecutor
	hypo   hypoChecker

	// runBatch executes a statement sequence in one rolled-back
	// transaction. Overridable for tests.
	runBatch func(ctx context.Context, stmts []string) error
}

var (
	quotedIdentRE = regexp.MustCompile(`"([^"]+)"`)
	createEnumRE  = regexp.MustCompile(`(?i)CREATE\s+TYPE\s+(\w+)\s+AS\s+ENUM`)
)

// Optimize runs the loop until a terminal action, the iteration ceiling, or
// the context deadline. It never panics and always returns a Solution.
func (a *Agent) Optimize(ctx *critic.Context) *critic.Solution {
	cfg := a.engine.Config
	log := TaskLogger(a.task.ID(), a.task.DBID)

	sol := &critic.Solution{InitialQuery: a.task.JoinedSQL()}
	queries := append([]string(nil), a.task.IssueSQL...)
	memory := critic.NewMemory(cfg.MemoryWindow)
	executedDDL := map[string]bool{}
	var executedList, createdEnums []string

	finish := func(success bool, reason string) *critic.Solution {
		sol.FinalQuery = strings.Join(queries, ";\n")
		sol.Success = success
		sol.Reason = reason
		sol.Iterations = memory.Recent()
		log.WithField("success", success).Info(reason)
		return sol
	}

	// Multi-statement management workflows are applied as one transactional
	// batch when every statement looks well formed; broken sequences fall
	// through to the loop so the planner can repair them.
	if a.task.MultiStatement() && a.task.Category == critic.CategoryManagement {
		if err := a.preflight(queries); err == nil {
			if err := a.batch(ctx, queries); err == nil {
				sol.Actions = append(sol.Actions, critic.Action{Kind: critic.ActionDone, Reasoning: "batch applied cleanly"})
				return finish(true, "workflow complete: statement batch applied")
			} else {
				log.WithError(err).Debug("batch execution failed, entering loop")
			}
		}
	}

	retried := false

	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return finish(false, critic.ErrTaskTimeout.New(a.task.ID()).Error())
		}

		span, ictx := ctx.Span(fmt.Sprintf("iteration.%d", iteration))

		feedback, costBefore := a.analyze(ictx, queries)

		schemaText := a.schemaText(ictx)
		action := a.engine.Planner.Plan(ictx, planner.Request{
			Task:          a.task,
			Queries:       queries,
			Feedback:      feedback,
			Memory:        memory.Recent(),
			SchemaText:    schemaText,
			Iteration:     iteration,
			MaxIterations: cfg.MaxIterations,
			ExecutedDDL:   executedList,
			CreatedEnums:  createdEnums,
			Stagnating:    memory.Stagnating(),
			Ineffective:   memory.Ineffective(),
			HypoAvailable: a.hypo != nil && a.hypo.Available(ictx),
		})
		sol.Actions = append(sol.Actions, action)

		if action.Kind == critic.ActionDone {
			span.Finish()
			if feedback.Status != critic.StatusPass && iteration < cfg.MinIterations {
				// Too early to give up on an unfixed query; treat the
				// premature Done as a stalled iteration.
				memory.Add(critic.IterationRecord{
					Ordinal: iteration, Kind: action.Kind, Summary: "early",
					CostBefore: costBefore, CostAfter: costBefore,
					Outcome: critic.OutcomeUnchanged,
					Insight: "done before minimum iterations, continuing",
				})
				sol.Actions = sol.Actions[:len(sol.Actions)-1]
				continue
			}
			return finish(true, "planner concluded: "+action.Reasoning)
		}
		if action.Kind == critic.ActionFailed {
			span.Finish()
			return finish(false, "planner gave up: "+action.Reasoning)
		}

		// Repeating DDL that already ran cannot change anything; record a
		// stalled iteration instead of hitting the database again.
		if action.MutatesDatabase() && executedDDL[action.NormalizedDDL()] {
			memory.Add(critic.IterationRecord{
				Ordinal: iteration, Kind: action.Kind, Summary: action.Summary(),
				CostBefore: costBefore, CostAfter: costBefore,
				Outcome: critic.OutcomeUnchanged, Insight: "duplicate action skipped",
			})
			span.Finish()
			continue
		}

		res := a.exec.Execute(ictx, action, queries)
		if res.Err != nil && pg.IsTransient(res.Err) && !retried {
			log.WithError(res.Err).Warn("transient error, retrying iteration")
			retried = true
			res = a.exec.Execute(ictx, action, queries)
		}

		if res.Err != nil {
			memory.Add(critic.IterationRecord{
				Ordinal: iteration, Kind: action.Kind, Summary: action.Summary(),
				CostBefore: costBefore, CostAfter: costBefore,
				Outcome: critic.OutcomeError, Insight: pg.Message(res.Err),
			})
			span.Finish()
			if pg.IsTransient(res.Err) {
				return finish(false, "repeated transient failure: "+res.Err.Error())
			}
			continue
		}

		queries = res.Queries
		if action.MutatesDatabase() {
			key := action.NormalizedDDL()
			executedDDL[key] = true
			executedList = append(executedList, key)
		}
		if action.Kind == critic.ActionCreateIndex && res.Mutated {
			a.oracle.InvalidateIndexes()
		}
		createdEnums = appendEnums(createdEnums, action)

		costAfter := a.reprobe(ictx, queries, costBefore)
		record := buildRecord(iteration, action, res, costBefore, costAfter)
		memory.Add(record)
		log.WithFields(logrus.Fields{
			IterationLogField: iteration,
			"action":          action.Kind,
			"delta_pct":       fmt.Sprintf("%+.1f", record.DeltaPct),
			"outcome":         record.Outcome,
		}).Info("iteration complete")
		span.Finish()
	}

	return finish(false, critic.ErrMaxIterations.New(cfg.MaxIterations).Error())
}

// explainableRE matches the statement kinds PostgreSQL can plan. Everything
// else (ALTER, CREATE TYPE, GRANT, ...) is rejected by EXPLAIN with a syntax
// error even when perfectly valid.
var explainableRE = regexp.MustCompile(`(?i)^\s*(SELECT|WITH|INSERT|UPDATE|DELETE|VALUES|TABLE|MERGE)\b`)

// analyze runs the two-phase EXPLAIN and translates the result. DDL-only
// statement sets skip EXPLAIN entirely and get static-inspection feedback.
// The measured phase only runs when the estimated cost is affordable.
func (a *Agent) analyze(ctx *critic.Context, queries []string) (*critic.Feedback, float64) {
	cfg := a.engine.Config
	primary := primaryQuery(queries)

	if !explainableRE.MatchString(primary) {
		return a.inspectStatic(queries), 0
	}

	raw, err := a.db.Explain(ctx, primary)
	if err != nil {
		return a.explainFailure(ctx, err), 0
	}
	tree, err := plan.Decode(raw)
	if err != nil {
		return semantic.ExplainFailure(err.Error()), 0
	}

	if tree.TotalCost <= cfg.Constraints.AnalyzeCostThreshold {
		if measured, err := a.db.ExplainAnalyze(ctx, primary, cfg.StatementTimeout); err == nil {
			if mt, err := plan.Decode(measured); err == nil {
				mt.TotalCost = tree.TotalCost
				tree = mt
			}
		} else {
			logrus.WithError(err).Debug("measured explain failed, using estimates")
		}
	}

	report := a.engine.Analyzer.Analyze(tree)
	fb, err := a.engine.Translator.Translate(ctx, report, cfg.Constraints)
	if err != nil {
		fb, _ = semantic.NewDeterministic().Translate(ctx, report, cfg.Constraints)
	}
	return fb, tree.TotalCost
}

// inspectStatic derives feedback for statement sets with no plannable
// statement. A malformed statement demands a rewrite; a clean set can only be
// judged against the task intent.
func (a *Agent) inspectStatic(queries []string) *critic.Feedback {
	for i, stmt := range queries {
		if err := checkStatement(stmt); err != nil {
			return semantic.SyntaxFailure(fmt.Sprintf("CRITICAL: statement %d is malformed: %s", i+1, err))
		}
	}
	return semantic.StaticCheckOK("statements are DDL with no execution plan to analyze; verify them against the task intent")
}

// explainFailure classifies an EXPLAIN error into actionable feedback. The
// reason framing drives the planner's category rules: syntax and missing
// references both demand a rewrite.
func (a *Agent) explainFailure(ctx *critic.Context, err error) *critic.Feedback {
	msg := pg.Message(err)
	switch {
	case pg.IsGroupingError(err):
		return semantic.SyntaxFailure("CRITICAL: aggregate in WHERE clause; move the condition to HAVING or a subquery")
	case pg.IsSyntaxError(err):
		return semantic.SyntaxFailure("CRITICAL: syntax error: " + msg)
	case pg.IsUndefinedReference(err):
		reason := "CRITICAL: referenced " + missingName(msg) + " does not exist"
		if s, serr := a.oracle.Schema(ctx); serr == nil {
			reason += similartext.Find(candidateNames(s), missingName(msg))
		}
		return semantic.SyntaxFailure(reason)
	case pg.IsStatementTimeout(err):
		return semantic.ExplainFailure("statement timed out during analysis")
	}
	return semantic.ExplainFailure(msg)
}

func missingName(msg string) string {
	if m := quotedIdentRE.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return "object"
}

func candidateNames(s *schema.Schema) []string {
	var names []string
	for _, t := range s.Tables {
		names = append(names, t.Name)
		names = append(names, t.ColumnNames()...)
	}
	return names
}

// reprobe measures the estimated cost after an action. Failures fall back to
// the before-cost so the record classifies as unchanged rather than crashing
// the loop.
func (a *Agent) reprobe(ctx *critic.Context, queries []string, before float64) float64 {
	primary := primaryQuery(queries)
	if !explainableRE.MatchString(primary) {
		return before
	}
	raw, err := a.db.Explain(ctx, primary)
	if err != nil {
		return before
	}
	tree, err := plan.Decode(raw)
	if err != nil {
		return before
	}
	return tree.TotalCost
}

func (a *Agent) schemaText(ctx *critic.Context) string {
	s, err := a.oracle.Schema(ctx)
	if err == nil {
		return s.Render()
	}
	if text, ok := a.engine.Schemas[int64(a.task.InstanceID)]; ok {
		logrus.WithError(err).Debug("live introspection failed, using preprocess schema dump")
		return text
	}
	logrus.WithError(err).Warn("schema fetch failed, planning without grounding")
	return ""
}

// preflight rejects statements that are visibly malformed before attempting
// a batch: unbalanced quoting or parentheses, or an opener that is not a SQL
// keyword. A debugging task whose statements fail this check must go through
// the rewrite loop instead.
func (a *Agent) preflight(stmts []string) error {
	for i, stmt := range stmts {
		if err := checkStatement(stmt); err != nil {
			return critic.ErrTaskInvalid.New(a.task.ID(), fmt.Sprintf("statement %d: %s", i+1, err))
		}
	}
	return nil
}

var leadingKeywordRE = regexp.MustCompile(`(?i)^\s*(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP|WITH|GRANT|REVOKE|COMMENT|TRUNCATE|SET|VACUUM|ANALYZE|REINDEX|CLUSTER|DO)\b`)

func checkStatement(stmt string) error {
	if !leadingKeywordRE.MatchString(stmt) {
		return fmt.Errorf("does not begin with a SQL keyword")
	}
	depth := 0
	var inSingle, inDouble bool
	for i := 0; i < len(stmt); i++ {
		switch c := stmt[i]; {
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced parentheses")
			}
		}
	}
	if inSingle || inDouble {
		return fmt.Errorf("unterminated quote")
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced parentheses")
	}
	return nil
}

// batch applies the statements inside one transaction and rolls it back: the
// goal is proving the workflow executes, not applying it twice before the
// evaluation runner replays it under its own transaction.
func (a *Agent) batch(ctx context.Context, stmts []string) error {
	if a.runBatch == nil {
		return critic.ErrTaskInvalid.New(a.task.ID(), "no batch runner")
	}
	return a.runBatch(ctx, stmts)
}

func appendEnums(enums []string, action critic.Action) []string {
	text := action.NewQuery
	if text == "" {
		text = action.DDL
	}
	for _, m := range createEnumRE.FindAllStringSubmatch(text, -1) {
		name := strings.ToLower(m[1])
		dup := false
		for _, e := range enums {
			if e == name {
				dup = true
				break
			}
		}
		if !dup {
			enums = append(enums, name)
		}
	}
	return enums
}

func buildRecord(iteration int, action critic.Action, res executor.Result, before, after float64) critic.IterationRecord {
	base := before
	if base < deltaEpsilon {
		base = deltaEpsilon
	}
	deltaPct := (after - before) / base * 100

	var outcome critic.Outcome
	switch {
	case deltaPct < -deltaSignificantPct:
		outcome = critic.OutcomeImproved
	case deltaPct > deltaSignificantPct:
		outcome = critic.OutcomeRegressed
	default:
		outcome = critic.OutcomeUnchanged
	}

	insight := res.Message
	if action.Kind == critic.ActionCreateIndex && outcome == critic.OutcomeUnchanged {
		insight = "index created but not used by planner"
	}
	if res.Hypo != nil {
		insight = res.Hypo.Verdict()
	}

	return critic.IterationRecord{
		Ordinal:    iteration,
		Kind:       action.Kind,
		Summary:    action.Summary(),
		CostBefore: before,
		CostAfter:  after,
		DeltaPct:   deltaPct,
		Outcome:    outcome,
		Insight:    insight,
	}
}

func primaryQuery(queries []string) string {
	for _, q := range queries {
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(q)), "SELECT") ||
			strings.HasPrefix(strings.ToUpper(strings.TrimSpace(q)), "WITH") {
			return q
		}
	}
	if len(queries) > 0 {
		return queries[0]
	}
	return ""
}
