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

// Package eval runs benchmark tasks against the agent and scores the
// outcomes: a transaction-isolated test-case runner, the three official
// metrics, and a parallel harness that aggregates results.
package eval

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pgcritic/pgcritic/critic"
	"github.com/pgcritic/pgcritic/schema"
)

// SmokeSize is how many tasks a smoke run takes from the front of the file.
const SmokeSize = 10

// LoadTasks reads a JSON-lines task file. Invalid lines are logged and
// skipped rather than failing the run; a benchmark file with one bad record
// should still evaluate the rest. A non-nil instance map resolves databases
// for records that carry only an instance id.
func LoadTasks(path string, dbs schema.InstanceMap) ([]*critic.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tasks []*critic.Task
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		task := &critic.Task{}
		if err := json.Unmarshal([]byte(line), task); err != nil {
			logrus.WithError(err).Warnf("skipping unreadable task on line %d", lineNo)
			continue
		}
		if task.DBID == "" && dbs != nil {
			task.DBID = dbs[int64(task.InstanceID)]
		}
		if err := task.Validate(); err != nil {
			logrus.WithError(err).Warnf("skipping invalid task on line %d", lineNo)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, scanner.Err()
}

// FilterCategory keeps only tasks of the given category; an empty category
// keeps everything.
func FilterCategory(tasks []*critic.Task, category critic.Category) []*critic.Task {
	if category == "" {
		return tasks
	}
	var out []*critic.Task
	for _, t := range tasks {
		if t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// Limit truncates the task list. Zero or negative means no limit.
func Limit(tasks []*critic.Task, n int) []*critic.Task {
	if n <= 0 || n >= len(tasks) {
		return tasks
	}
	return tasks[:n]
}

// Smoke returns the first SmokeSize tasks.
func Smoke(tasks []*critic.Task) []*critic.Task {
	return Limit(tasks, SmokeSize)
}
