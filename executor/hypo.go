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

package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/pg"
	"github.com/pgcritic/pgcritic/plan"
)

// MinImprovementPct is the gate for approving a hypothetical index: below
// this estimated cost improvement the index is reported as not beneficial.
const MinImprovementPct = 10.0

// HypoReport is the verdict of one hypothetical-index evaluation.
type HypoReport struct {
	Available      bool    `json:"available"`
	WouldBeUsed    bool    `json:"would_be_used"`
	CostBefore     float64 `json:"cost_before"`
	CostAfter      float64 `json:"cost_after"`
	ImprovementPct float64 `json:"improvement_pct"`
	Beneficial     bool    `json:"beneficial"`
}

// Verdict renders the report as one line of iteration insight.
func (r *HypoReport) Verdict() string {
	switch {
	case !r.Available:
		return "hypothetical index support unavailable"
	case !r.WouldBeUsed:
		return "hypothetical index would not be used by the planner"
	case !r.Beneficial:
		return fmt.Sprintf("not beneficial: %.1f%% improvement is below the %.0f%% threshold",
			r.ImprovementPct, MinImprovementPct)
	default:
		return fmt.Sprintf("beneficial: estimated cost drops %.1f%% (%.1f -> %.1f)",
			r.ImprovementPct, r.CostBefore, r.CostAfter)
	}
}

// Prober evaluates candidate indexes through the hypopg extension. The
// extension's presence is probed once and cached for the prober's lifetime,
// one prober per worker.
type Prober struct {
	db *pg.DB

	probeOnce sync.Once
	available bool
}

// NewProber creates a prober on the given database handle.
func NewProber(db *pg.DB) *Prober {
	return &Prober{db: db}
}

// Available reports whether hypopg is installed, probing on first call.
func (p *Prober) Available(ctx context.Context) bool {
	p.probeOnce.Do(func() {
		var n int
		err := p.db.QueryRowContext(ctx,
			`SELECT 1 FROM pg_extension WHERE extname = 'hypopg'`).Scan(&n)
		p.available = err == nil
		if err != nil && err != sql.ErrNoRows {
			logrus.WithError(err).Debug("hypopg probe failed")
		}
	})
	return p.available
}

// Test creates the candidate index hypothetically inside a dedicated session,
// measures the probe query's estimated cost with and without it, and always
// cleans up. The hypothetical index never exists outside this call.
func (p *Prober) Test(ctx *critic.Context, ddl, probeQuery string) (*HypoReport, error) {
	if !p.Available(ctx) {
		return &HypoReport{}, nil
	}
	if strings.TrimSpace(probeQuery) == "" {
		return nil, critic.ErrHypoUnavailable.New()
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	defer conn.ExecContext(context.Background(), "SELECT hypopg_reset()")

	before, _, err := explainCost(ctx, conn, probeQuery)
	if err != nil {
		return nil, err
	}

	if _, err := conn.ExecContext(ctx, "SELECT hypopg_create_index($1)", strings.TrimSpace(ddl)); err != nil {
		return nil, critic.ErrHypoUnavailable.Wrap(err)
	}

	after, planText, err := explainCost(ctx, conn, probeQuery)
	if err != nil {
		return nil, err
	}

	return Evaluate(before, after, planText), nil
}

// Evaluate computes the verdict from measured costs and the post-creation
// plan text. hypopg names its indexes with a "hypo" marker, so its presence
// in the plan means the planner picked the candidate up.
func Evaluate(costBefore, costAfter float64, planText string) *HypoReport {
	report := &HypoReport{
		Available:   true,
		WouldBeUsed: strings.Contains(strings.ToLower(planText), "hypo"),
		CostBefore:  costBefore,
		CostAfter:   costAfter,
	}
	if costBefore > 0 {
		report.ImprovementPct = (costBefore - costAfter) / costBefore * 100
	}
	report.Beneficial = report.WouldBeUsed && report.ImprovementPct >= MinImprovementPct
	return report
}

func explainCost(ctx context.Context, conn *sql.Conn, query string) (float64, string, error) {
	var raw []byte
	stmt := "EXPLAIN (FORMAT JSON) " + strings.TrimRight(strings.TrimSpace(query), ";")
	if err := conn.QueryRowContext(ctx, stmt).Scan(&raw); err != nil {
		return 0, "", critic.ErrExplainFailed.Wrap(err, query)
	}
	tree, err := plan.Decode(raw)
	if err != nil {
		return 0, "", err
	}
	return tree.TotalCost, string(raw), nil
}
