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

package critic

import (
	"context"

	opentracing "github.com/opentracing/opentracing-go"
)

// Context carries the standard context plus the task being worked on and a
// tracer for per-phase spans.
type Context struct {
	context.Context
	Task   *Task
	tracer opentracing.Tracer
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithTask attaches the task to the context.
func WithTask(t *Task) ContextOption {
	return func(ctx *Context) {
		ctx.Task = t
	}
}

// WithTracer attaches the given tracer to the context.
func WithTracer(tr opentracing.Tracer) ContextOption {
	return func(ctx *Context) {
		ctx.tracer = tr
	}
}

// NewContext wraps a standard context.
func NewContext(ctx context.Context, opts ...ContextOption) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Context{Context: ctx, tracer: opentracing.NoopTracer{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Span starts a span with the given name and returns a child context carrying
// the same task and tracer.
func (ctx *Context) Span(opName string, opts ...opentracing.StartSpanOption) (opentracing.Span, *Context) {
	span := ctx.tracer.StartSpan(opName, opts...)
	return span, &Context{
		Context: opentracing.ContextWithSpan(ctx.Context, span),
		Task:    ctx.Task,
		tracer:  ctx.tracer,
	}
}
