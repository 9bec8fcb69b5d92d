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

// Package schema grounds the planner in what actually exists: tables,
// columns, keys, indexes, and a few sample rows per table, fetched from the
// catalog once per task and refreshed only when the agent changes the index
// landscape.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/hashstructure"
)

// Column is one table column.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ForeignKey is one outgoing reference.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// Index is one existing index, real or created by the agent.
type Index struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns"`
	Unique     bool     `json:"unique"`
	Definition string   `json:"definition"`
}

// Table is the canonical description of one relation.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKey  []string     `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty"`
	SampleRows  []string     `json:"sample_rows,omitempty"`
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnNames returns the ordered column names.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Schema is everything the planner may reference in one database.
type Schema struct {
	Database string   `json:"database"`
	Tables   []*Table `json:"tables"`
}

// Table returns the named table, or nil.
func (s *Schema) Table(name string) *Table {
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// TableNames returns the sorted table names.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}
	sort.Strings(names)
	return names
}

// HasIndex reports whether any table carries an index with the given name.
func (s *Schema) HasIndex(name string) bool {
	for _, t := range s.Tables {
		for _, idx := range t.Indexes {
			if idx.Name == name {
				return true
			}
		}
	}
	return false
}

// Version hashes the structural parts of the schema. Two fetches with the
// same tables, columns, and indexes produce the same version, so a
// process-wide cache can key on (database, version).
func (s *Schema) Version() uint64 {
	type structural struct {
		Database string
		Tables   []*Table
	}
	v, err := hashstructure.Hash(structural{Database: s.Database, Tables: s.Tables}, nil)
	if err != nil {
		return 0
	}
	return v
}

// Render formats the schema the way the planner prompt consumes it: one
// block per table with columns, keys, indexes, and sample rows.
func (s *Schema) Render() string {
	var b strings.Builder
	for i, t := range s.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "TABLE %s (\n", t.Name)
		for _, c := range t.Columns {
			null := ""
			if !c.Nullable {
				null = " NOT NULL"
			}
			fmt.Fprintf(&b, "  %s %s%s\n", c.Name, c.Type, null)
		}
		if len(t.PrimaryKey) > 0 {
			fmt.Fprintf(&b, "  PRIMARY KEY (%s)\n", strings.Join(t.PrimaryKey, ", "))
		}
		for _, fk := range t.ForeignKeys {
			fmt.Fprintf(&b, "  FOREIGN KEY (%s) REFERENCES %s(%s)\n", fk.Column, fk.RefTable, fk.RefColumn)
		}
		b.WriteString(")\n")
		for _, idx := range t.Indexes {
			fmt.Fprintf(&b, "INDEX %s ON %s (%s)\n", idx.Name, t.Name, strings.Join(idx.Columns, ", "))
		}
		for _, row := range t.SampleRows {
			fmt.Fprintf(&b, "-- sample: %s\n", row)
		}
	}
	return b.String()
}
