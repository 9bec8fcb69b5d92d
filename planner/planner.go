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

// Package planner asks the model for the next action given the current
// feedback, history, and schema. It owns prompt construction and response
// parsing; deciding whether to obey the action is the controller's job.
package planner

import (
	"github.com/sirupsen/logrus"

	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/llm"
)

// Planner produces the next Action for a task iteration.
type Planner struct {
	client llm.Client
}

// New creates a planner on the given client.
func New(client llm.Client) *Planner {
	return &Planner{client: client}
}

// Plan builds the iteration prompt, queries the model, and parses the reply.
// A model failure or unparseable reply yields a Failed action, never an
// error: planning problems terminate the task, not the harness.
func (p *Planner) Plan(ctx *critic.Context, req Request) critic.Action {
	span, sctx := ctx.Span("planner.plan")
	defer span.Finish()

	prompt := BuildPrompt(req)
	text, err := p.client.Complete(sctx, systemPrompt, prompt)
	if err != nil {
		logrus.WithError(err).Warn("planner model call failed")
		return critic.Action{
			Kind:      critic.ActionFailed,
			Reasoning: "planning error: " + err.Error(),
		}
	}

	action := critic.ParseAction(text)
	logrus.WithFields(logrus.Fields{
		"task":       req.Task.ID(),
		"iteration":  req.Iteration,
		"action":     action.Kind,
		"confidence": action.Confidence,
	}).Debug("planner decided")
	return action
}
