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

package schema

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
)

// PreprocessSchemas maps instance id to the canonical CREATE TABLE dump
// distributed alongside the task file. The dump is plain text with sample
// rows in comments; it is injected into prompts as-is.
type PreprocessSchemas map[int64]string

// LoadPreprocessSchemas reads a JSON-lines file where each line carries
// "instance_id" and "preprocess_schema". Lines missing either field are
// skipped.
func LoadPreprocessSchemas(path string) (PreprocessSchemas, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := PreprocessSchemas{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec struct {
			InstanceID int64  `json:"instance_id"`
			Schema     string `json:"preprocess_schema"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.Schema != "" {
			out[rec.InstanceID] = rec.Schema
		}
	}
	return out, scanner.Err()
}

// InstanceMap resolves instance id to database name.
type InstanceMap map[int64]string

// LoadInstanceMap reads a JSON-lines file of {"instance_id": n, "db_id": s}
// records. It is loaded once at startup and shared read-only.
func LoadInstanceMap(path string) (InstanceMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := InstanceMap{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec struct {
			InstanceID int64  `json:"instance_id"`
			DBID       string `json:"db_id"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.DBID != "" {
			out[rec.InstanceID] = rec.DBID
		}
	}
	return out, scanner.Err()
}
