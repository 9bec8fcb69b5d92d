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

package llm

import (
	"context"
	"sync"
)

// Scripted is a Client for tests: it replays a fixed sequence of completions
// and records every prompt it was given.
type Scripted struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int

	// Prompts holds the user prompt of every call, in order.
	Prompts []string
	// Systems holds the system prompt of every call, in order.
	Systems []string
}

// NewScripted returns a client that answers with the given completions in
// order. Once exhausted it keeps repeating the final one.
func NewScripted(responses ...string) *Scripted {
	return &Scripted{responses: responses}
}

// FailWith makes the nth call (zero-based) return err instead of a
// completion.
func (s *Scripted) FailWith(n int, err error) *Scripted {
	for len(s.errs) <= n {
		s.errs = append(s.errs, nil)
	}
	s.errs[n] = err
	return s
}

// Complete implements Client.
func (s *Scripted) Complete(_ context.Context, system, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.calls
	s.calls++
	s.Prompts = append(s.Prompts, prompt)
	s.Systems = append(s.Systems, system)

	if n < len(s.errs) && s.errs[n] != nil {
		return "", s.errs[n]
	}
	if len(s.responses) == 0 {
		return "", ErrEmptyCompletion.New()
	}
	if n >= len(s.responses) {
		n = len(s.responses) - 1
	}
	return s.responses[n], nil
}

// Calls returns how many completions were requested.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
