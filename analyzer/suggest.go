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

package analyzer

import (
	"fmt"
	"strings"
)

// SuggestIndex synthesizes canonical CREATE INDEX statements for the given
// table and columns. AND-connected predicates become a single composite index;
// OR-connected predicates become one single-column index per column, joined
// with "; " because each branch of an OR needs its own access path. Column
// order is preserved from extraction.
func SuggestIndex(table string, cols []string, conn Connective) string {
	if table == "" || len(cols) == 0 {
		return ""
	}
	if conn == ConnectiveOr {
		stmts := make([]string, len(cols))
		for i, c := range cols {
			stmts[i] = fmt.Sprintf("CREATE INDEX idx_%s_%s ON %s(%s);", table, c, table, c)
		}
		return strings.Join(stmts, " ")
	}
	if len(cols) == 1 {
		return fmt.Sprintf("CREATE INDEX idx_%s_%s ON %s(%s);", table, cols[0], table, cols[0])
	}
	return fmt.Sprintf("CREATE INDEX idx_%s_composite ON %s(%s);", table, table, strings.Join(cols, ", "))
}

// SuggestAnalyze synthesizes the statistics-refresh directive for a table.
func SuggestAnalyze(table string) string {
	return fmt.Sprintf("RUN_ANALYZE %s", table)
}
