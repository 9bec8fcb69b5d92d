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

// Package llm wraps a language model behind the one-method interface the
// planner and translator need. The production implementation sits on top of
// langchaingo so any of its providers can back the agent.
package llm

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	errors "gopkg.in/src-d/go-errors.v1"
)

// ErrEmptyCompletion is returned when the model produced no usable text.
var ErrEmptyCompletion = errors.NewKind("llm: model returned no completion")

// Client produces a completion for a system/user prompt pair.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Option configures a ModelClient.
type Option func(*ModelClient)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *ModelClient) { c.temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(c *ModelClient) { c.maxTokens = n }
}

// WithThinkingBudget reserves extra completion tokens for models that emit
// reasoning before their answer. The budget is added on top of max tokens.
func WithThinkingBudget(n int) Option {
	return func(c *ModelClient) { c.thinkingBudget = n }
}

// ModelClient is the production Client backed by a langchaingo model.
type ModelClient struct {
	model          llms.Model
	temperature    float64
	maxTokens      int
	thinkingBudget int
}

// NewModelClient wraps the given model. Defaults: temperature 0, 2048
// completion tokens, no thinking budget.
func NewModelClient(model llms.Model, opts ...Option) *ModelClient {
	c := &ModelClient{model: model, maxTokens: 2048}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Complete sends the prompt pair and returns the completion text.
func (c *ModelClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	msgs := []llms.MessageContent{}
	if system != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, system))
	}
	msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeHuman, prompt))

	resp, err := c.model.GenerateContent(ctx, msgs,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens+c.thinkingBudget),
	)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion.New()
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyCompletion.New()
	}
	logrus.WithField("chars", len(text)).Debug("llm completion received")
	return text, nil
}
