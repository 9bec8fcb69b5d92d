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

package similartext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFind(t *testing.T) {
	require := require.New(t)

	require.Empty(Find(nil, "users"))
	require.Empty(Find([]string{"users"}, ""))

	tables := []string{"users", "orders", "lineitem", "customer", "partsupp"}
	require.Equal(", maybe you mean users?", Find(tables, "userz"))
	require.Equal(", maybe you mean orders?", Find(tables, "ordes"))

	// Quoted identifiers keep their casing, but matching ignores it.
	require.Equal(", maybe you mean Orders?", Find([]string{"Orders", "Users"}, "ORDES"))

	// Nothing within edit distance of a name that is not a typo.
	require.Empty(Find(tables, "pg_stat_statements"))

	// Equally close candidates are all offered, sorted.
	require.Equal(", maybe you mean c_phone or s_phone?",
		Find([]string{"c_phone", "s_phone", "o_orderkey"}, "phone"))
}

func TestFindFromMap(t *testing.T) {
	require := require.New(t)

	var columns map[string]string
	require.Empty(FindFromMap(columns, "email"))

	columns = map[string]string{
		"email":      "text",
		"created_at": "timestamptz",
	}
	require.Equal(", maybe you mean email?", FindFromMap(columns, "emial"))
	require.Empty(FindFromMap(columns, ""))
	require.Equal(", maybe you mean created_at?", FindFromMap(columns, "create_at"))

	// Non-map input is tolerated rather than panicking.
	require.Empty(FindFromMap([]string{"email"}, "email"))
}
