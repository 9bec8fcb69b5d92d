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

package semantic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/llm"
)

const translatorSystem = `You translate PostgreSQL query-plan analysis into one short
feedback object for an autonomous optimization agent. Respond with a single JSON
object with keys "status", "reason", "suggestion", "priority". Never invent table,
column, or index names: the analysis already contains the only identifiers you may
use. Keep "reason" to one sentence.`

// LLM is the model-backed translator. Status, priority, and suggestion are
// still computed mechanically; only the reason phrasing is delegated to the
// model, and a guard restores the analyzer's verbatim suggestion if the model
// rewrote it.
type LLM struct {
	client   llm.Client
	fallback *Deterministic
}

// NewLLM returns a translator backed by the given client.
func NewLLM(client llm.Client) *LLM {
	return &LLM{client: client, fallback: NewDeterministic()}
}

type llmFeedback struct {
	Status     string `json:"status"`
	Reason     string `json:"reason"`
	Suggestion string `json:"suggestion"`
	Priority   string `json:"priority"`
}

// Translate implements Translator. Any model failure degrades to the
// deterministic translation rather than surfacing an error; translation is
// never the reason a task fails.
func (l *LLM) Translate(ctx *critic.Context, report *critic.Report, c critic.Constraints) (*critic.Feedback, error) {
	base, _ := l.fallback.Translate(ctx, report, c)
	if report == nil || len(report.Bottlenecks) == 0 {
		return base, nil
	}

	raw, err := json.Marshal(report)
	if err != nil {
		return base, nil
	}
	prompt := fmt.Sprintf("Analysis report:\n%s\n\nCost budget: %.0f. Time budget: %.0f ms.\nCurrent verdict: %s.",
		raw, c.MaxCost, c.MaxTimeMS, base.Status)

	span, sctx := ctx.Span("semantic.translate")
	defer span.Finish()

	text, err := l.client.Complete(sctx, translatorSystem, prompt)
	if err != nil {
		logrus.WithError(err).Warn("translator model call failed, using deterministic feedback")
		return base, nil
	}

	var out llmFeedback
	if err := json.Unmarshal([]byte(extractJSON(text)), &out); err != nil {
		logrus.WithError(err).Debug("translator response was not JSON, using deterministic feedback")
		return base, nil
	}

	if reason := strings.TrimSpace(out.Reason); reason != "" {
		base.Reason = reason
	}

	// Hallucination guard: the model may rephrase the reason but never the
	// remedy. Anything that is not the analyzer's exact suggestion is
	// replaced with it.
	if s := strings.TrimSpace(out.Suggestion); s != "" && s != base.Suggestion {
		logrus.WithFields(logrus.Fields{
			"model":     s,
			"canonical": base.Suggestion,
		}).Debug("replacing model suggestion with canonical one")
	}
	return base, nil
}

// extractJSON returns the first {...} object in text, tolerating fenced code
// blocks around it.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
