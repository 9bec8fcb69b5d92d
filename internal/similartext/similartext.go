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

// Package similartext suggests close matches for a misspelled identifier,
// used to enrich "does not exist" feedback with the name the user probably
// meant.
package similartext

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// maxDistance is the largest edit distance still considered a plausible typo.
const maxDistance = 3

func distance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// Find returns a hint such as ", maybe you mean bar?" listing the names
// closest to the given one, or an empty string when nothing is close enough.
func Find(names []string, name string) string {
	if name == "" {
		return ""
	}

	best := maxDistance + 1
	var matches []string
	for _, n := range names {
		d := distance(strings.ToLower(n), strings.ToLower(name))
		switch {
		case d < best:
			best = d
			matches = []string{n}
		case d == best:
			matches = append(matches, n)
		}
	}
	if best > maxDistance || len(matches) == 0 {
		return ""
	}

	sort.Strings(matches)
	return fmt.Sprintf(", maybe you mean %s?", strings.Join(matches, " or "))
}

// FindFromMap does the same over the keys of a map with string keys.
func FindFromMap(names interface{}, name string) string {
	rv := reflect.ValueOf(names)
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return ""
	}
	var keys []string
	for _, k := range rv.MapKeys() {
		if k.Kind() == reflect.String {
			keys = append(keys, k.String())
		}
	}
	sort.Strings(keys)
	return Find(keys, name)
}
