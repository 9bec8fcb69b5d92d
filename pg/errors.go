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

package pg

import (
	"errors"
	"strings"

	"github.com/lib/pq"
)

// SQLSTATE classes and codes the controller reacts to.
const (
	codeSyntaxError       = "42601"
	codeUndefinedColumn   = "42703"
	codeUndefinedTable    = "42P01"
	codeUndefinedFunction = "42883"
	codeUndefinedObject   = "42704"
	codeGroupingError     = "42803"
	codeDuplicateTable    = "42P07"
	codeDuplicateObject   = "42710"
	codeQueryCanceled     = "57014"
	codeDeadlockDetected  = "40P01"
	codeLockNotAvailable  = "55P03"
	classConnection       = "08"
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// Message returns the server-side message for a driver error, or the plain
// Error() text for anything else.
func Message(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// IsSyntaxError reports whether err is a SQL syntax error.
func IsSyntaxError(err error) bool {
	return pqCode(err) == codeSyntaxError
}

// IsUndefinedReference reports whether err names a missing column, table,
// function, or type.
func IsUndefinedReference(err error) bool {
	switch pqCode(err) {
	case codeUndefinedColumn, codeUndefinedTable, codeUndefinedFunction, codeUndefinedObject:
		return true
	}
	return false
}

// IsGroupingError reports whether err is a misuse of aggregates, such as an
// aggregate in a WHERE clause.
func IsGroupingError(err error) bool {
	if pqCode(err) == codeGroupingError {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "aggregate functions are not allowed in WHERE")
}

// IsAlreadyExists reports whether err is a duplicate-object error, which
// idempotent preprocess steps treat as success.
func IsAlreadyExists(err error) bool {
	switch pqCode(err) {
	case codeDuplicateTable, codeDuplicateObject:
		return true
	}
	return err != nil && strings.Contains(err.Error(), "already exists")
}

// IsStatementTimeout reports whether err is a server-side statement
// cancellation.
func IsStatementTimeout(err error) bool {
	if pqCode(err) == codeQueryCanceled {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "statement timeout")
}

// IsTransient reports whether err is worth one retry: connection failures,
// deadlocks, and lock waits. Semantic errors are never transient.
func IsTransient(err error) bool {
	code := pqCode(err)
	if strings.HasPrefix(code, classConnection) {
		return true
	}
	switch code {
	case codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "bad connection")
}
