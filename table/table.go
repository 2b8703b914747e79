// Package table implements the in-memory column model: typed schemas, rows of
// tagged values, contiguous shard slicing and payload embedding. Tables are
// built by the dataset builders and consumed by the shard codec and uploader.
package table

import (
	"fmt"
	"sort"
	"strings"
)

// Kind enumerates the column types a schema can carry.
type Kind int

const (
	String Kind = iota
	Float
	Image
	StringList
	ImageList
)

var kindNames = map[Kind]string{
	String:     "string",
	Float:      "float",
	Image:      "image",
	StringList: "string_list",
	ImageList:  "image_list",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// KindFromString is the inverse of Kind.String. It is used when decoding
// shard metadata.
func KindFromString(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown column kind %q", s)
}

// Field is one named, typed column in a schema.
type Field struct {
	Name string
	Kind Kind
}

// Schema is an ordered list of fields. Order is significant: it defines the
// column order in encoded shards.
type Schema []Field

// Names returns the field names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Field looks up a field by name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Row maps field names to values for one logical unit (subject or session).
type Row map[string]Value

// Table is a schema plus rows. The zero value is not usable, use New.
type Table struct {
	Schema Schema
	Rows   []Row
}

// New returns an empty table with the given schema.
func New(schema Schema) *Table {
	return &Table{Schema: schema}
}

// Append adds a row.
func (t *Table) Append(row Row) {
	t.Rows = append(t.Rows, row)
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// CheckColumns verifies that every schema field is present in every row with
// the declared kind, and that rows carry no columns outside the schema.
func (t *Table) CheckColumns() error {
	for i, row := range t.Rows {
		for _, f := range t.Schema {
			v, ok := row[f.Name]
			if !ok {
				return fmt.Errorf("row %d: missing column %q (schema: %s)",
					i, f.Name, strings.Join(t.Schema.Names(), ", "))
			}
			if v.kind != f.Kind {
				return fmt.Errorf("row %d: column %q has kind %s, schema says %s",
					i, f.Name, v.kind, f.Kind)
			}
		}
		if len(row) != len(t.Schema) {
			extra := extraColumns(t.Schema, row)
			return fmt.Errorf("row %d: columns not in schema: %s",
				i, strings.Join(extra, ", "))
		}
	}
	return nil
}

func extraColumns(schema Schema, row Row) []string {
	var extra []string
	for name := range row {
		if _, ok := schema.Field(name); !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return extra
}

// Shard returns the contiguous i-th of n row slices as a table sharing the
// receiver's rows. Rows divide as evenly as possible, earlier shards take the
// remainder. i is zero-based.
func (t *Table) Shard(n, i int) (*Table, error) {
	if n < 1 {
		return nil, fmt.Errorf("shard count %d out of range", n)
	}
	if i < 0 || i >= n {
		return nil, fmt.Errorf("shard index %d out of range [0,%d)", i, n)
	}
	rows := len(t.Rows)
	base := rows / n
	rem := rows % n
	start := i*base + min(i, rem)
	size := base
	if i < rem {
		size++
	}
	return &Table{Schema: t.Schema, Rows: t.Rows[start : start+size]}, nil
}

// Materialize deep-copies the table into fresh, independent storage. A
// materialized shard holds no references into the full table, so the full
// table stays collectible while the shard is embedded and encoded.
func (t *Table) Materialize() *Table {
	fresh := &Table{
		Schema: append(Schema(nil), t.Schema...),
		Rows:   make([]Row, len(t.Rows)),
	}
	for i, row := range t.Rows {
		r := make(Row, len(row))
		for name, v := range row {
			r[name] = v.clone()
		}
		fresh.Rows[i] = r
	}
	return fresh
}

// Column returns the values of one column in row order.
func (t *Table) Column(name string) ([]Value, error) {
	if _, ok := t.Schema.Field(name); !ok {
		return nil, fmt.Errorf("no column %q (schema: %s)",
			name, strings.Join(t.Schema.Names(), ", "))
	}
	vals := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		vals[i] = row[name]
	}
	return vals, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
