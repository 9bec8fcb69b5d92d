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
	"github.com/sirupsen/logrus"
)

// Standard log field keys used across the module.
const (
	TaskLogField      = "task"
	DatabaseLogField  = "database"
	IterationLogField = "iteration"
	WorkerLogField    = "worker"
)

// SetupLogging configures the process-wide logger. Unknown levels fall back
// to info.
func SetupLogging(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
}

// TaskLogger returns a logger scoped to one task.
func TaskLogger(taskID, database string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		TaskLogField:     taskID,
		DatabaseLogField: database,
	})
}
