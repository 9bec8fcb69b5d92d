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
	"regexp"
	"strings"
)

// Connective is the boolean operator joining the top-level predicates of a
// filter expression. It decides whether extracted columns become one composite
// index or several single-column indexes.
type Connective string

const (
	ConnectiveAnd  Connective = "AND"
	ConnectiveOr   Connective = "OR"
	ConnectiveNone Connective = ""
)

var identRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Words that survive LHS extraction but never name a column.
var reservedWords = map[string]struct{}{
	"and": {}, "or": {}, "not": {}, "is": {}, "null": {}, "true": {},
	"false": {}, "in": {}, "like": {}, "ilike": {}, "between": {},
	"exists": {}, "any": {}, "all": {}, "some": {}, "case": {}, "when": {},
	"then": {}, "else": {}, "end": {}, "select": {}, "distinct": {},
}

// Comparison operators ordered longest first so that ">=" wins over ">".
var comparisonOps = []string{
	"<=", ">=", "<>", "!=", "!~~*", "!~~", "~~*", "~~", "=", "<", ">",
	" IS ", " IN ", " LIKE ", " ILIKE ", " BETWEEN ", "@>", "<@",
}

// ExtractColumns pulls the referenced column names out of a plan filter
// expression such as
//
//	((l_comment)::text = 'rare'::text) AND (l_quantity > '40'::numeric)
//
// and reports the top-level connective. Columns come back in order of first
// appearance with duplicates removed. Expressions with no recognizable column
// yield an empty slice, never an error.
func ExtractColumns(filter string) ([]string, Connective) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, ConnectiveNone
	}
	filter = stripOuterParens(filter)

	parts, conn := splitTopLevel(filter)

	var cols []string
	seen := map[string]struct{}{}
	for _, part := range parts {
		col := extractColumn(part)
		if col == "" {
			continue
		}
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		cols = append(cols, col)
	}
	if len(cols) < 2 {
		conn = ConnectiveNone
	}
	return cols, conn
}

// splitTopLevel splits on AND or OR at parenthesis depth zero. PostgreSQL
// parenthesizes mixed expressions, so the top level is homogeneous; if both
// connectives somehow appear, AND wins because a composite index is the safer
// suggestion.
func splitTopLevel(expr string) ([]string, Connective) {
	type splitResult struct {
		parts []string
		found bool
	}
	split := func(word string) splitResult {
		var parts []string
		depth, quote := 0, false
		last := 0
		token := " " + word + " "
		for i := 0; i+len(token) <= len(expr); i++ {
			c := expr[i]
			switch {
			case c == '\'':
				quote = !quote
			case quote:
			case c == '(':
				depth++
			case c == ')':
				depth--
			case depth == 0 && expr[i:i+len(token)] == token:
				parts = append(parts, expr[last:i])
				last = i + len(token)
				i += len(token) - 1
			}
		}
		if len(parts) == 0 {
			return splitResult{found: false}
		}
		parts = append(parts, expr[last:])
		return splitResult{parts: parts, found: true}
	}

	if r := split("AND"); r.found {
		return r.parts, ConnectiveAnd
	}
	if r := split("OR"); r.found {
		return r.parts, ConnectiveOr
	}
	return []string{expr}, ConnectiveNone
}

// extractColumn takes one comparison predicate and returns the column it
// constrains, or "" when none can be identified.
func extractColumn(pred string) string {
	pred = stripOuterParens(strings.TrimSpace(pred))
	lhs := pred
	cut := len(pred)
	for _, op := range comparisonOps {
		if idx := indexTopLevel(pred, op); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	if cut < len(pred) {
		lhs = pred[:cut]
	}
	return CleanIdentifier(lhs)
}

// indexTopLevel finds op outside parentheses and single quotes.
func indexTopLevel(s, op string) int {
	depth, quote := 0, false
	for i := 0; i+len(op) <= len(s); i++ {
		c := s[i]
		switch {
		case c == '\'':
			quote = !quote
		case quote:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && s[i:i+len(op)] == op:
			return i
		}
	}
	return -1
}

// CleanIdentifier reduces an expression fragment to a bare column name:
// surrounding parentheses, ::type casts, table qualifiers, and double quotes
// are stripped. Returns "" when the remainder is not a plain identifier.
func CleanIdentifier(s string) string {
	s = strings.TrimSpace(s)
	for {
		before := s
		s = stripOuterParens(s)
		if i := strings.Index(s, "::"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
		if s == before {
			break
		}
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	s = strings.Trim(s, `"`)
	lower := strings.ToLower(s)
	if _, reserved := reservedWords[lower]; reserved {
		return ""
	}
	if !identRE.MatchString(s) {
		return ""
	}
	return lower
}

func stripOuterParens(s string) string {
	for len(s) > 1 && s[0] == '(' && s[len(s)-1] == ')' {
		depth := 0
		balanced := true
		for i := 0; i < len(s)-1; i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				balanced = false
				break
			}
		}
		if !balanced {
			return s
		}
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// CleanSortKey strips direction and nulls-ordering suffixes plus any table
// qualifier from an EXPLAIN sort key, e.g. "users.created_at DESC NULLS LAST"
// becomes "created_at".
func CleanSortKey(key string) string {
	key = strings.TrimSpace(key)
	upper := strings.ToUpper(key)
	for _, suffix := range []string{" NULLS FIRST", " NULLS LAST"} {
		if strings.HasSuffix(upper, suffix) {
			key = key[:len(key)-len(suffix)]
			upper = upper[:len(upper)-len(suffix)]
		}
	}
	for _, suffix := range []string{" DESC", " ASC"} {
		if strings.HasSuffix(upper, suffix) {
			key = key[:len(key)-len(suffix)]
			break
		}
	}
	return CleanIdentifier(key)
}

// JoinColumnFor returns the column in a join condition that belongs to the
// given relation or alias, e.g. relation "orders" in
// "(orders.o_custkey = customer.c_custkey)" yields "o_custkey". When no side
// is qualified with the relation the first extractable column is returned.
func JoinColumnFor(cond, relation, alias string) string {
	cond = stripOuterParens(strings.TrimSpace(cond))
	eq := indexTopLevel(cond, "=")
	if eq < 0 {
		return CleanIdentifier(cond)
	}
	sides := []string{cond[:eq], cond[eq+1:]}
	for _, side := range sides {
		side = stripOuterParens(strings.TrimSpace(side))
		if i := strings.Index(side, "."); i >= 0 {
			qual := strings.TrimSpace(strings.TrimLeft(side[:i], "("))
			if qual == relation || (alias != "" && qual == alias) {
				return CleanIdentifier(side)
			}
		}
	}
	for _, side := range sides {
		if col := CleanIdentifier(side); col != "" {
			return col
		}
	}
	return ""
}
