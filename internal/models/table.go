package models

// Table is an ordered set of named columns over zero or more rows.
// Column order is significant; row values are keyed by column name.
// Observation properties arrive schemaless, so cells are untyped.
type Table struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// NewTable returns an empty table with the given column order.
func NewTable(columns ...string) Table {
	return Table{Columns: columns}
}

// HasColumn reports whether the table has a column with the given name.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn appends a column to the end of the order if not already present.
func (t *Table) AddColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

// AppendRow adds a row. Keys not in the column order are ignored by
// consumers that iterate Columns; callers are expected to register
// columns first.
func (t *Table) AppendRow(row map[string]any) {
	t.Rows = append(t.Rows, row)
}

// Drop removes the named columns from the order and from every row.
// Unknown names are ignored.
func (t *Table) Drop(names ...string) {
	dropped := make(map[string]struct{}, len(names))
	for _, n := range names {
		dropped[n] = struct{}{}
	}
	kept := t.Columns[:0]
	for _, c := range t.Columns {
		if _, ok := dropped[c]; !ok {
			kept = append(kept, c)
		}
	}
	t.Columns = kept
	for _, row := range t.Rows {
		for n := range dropped {
			delete(row, n)
		}
	}
}

// InsertConst splices a column into the order at position pos (clamped to
// [0, len]) and assigns the same value to it in every row.
func (t *Table) InsertConst(pos int, name string, value any) {
	if pos < 0 {
		pos = 0
	}
	if pos > len(t.Columns) {
		pos = len(t.Columns)
	}
	t.Columns = append(t.Columns, "")
	copy(t.Columns[pos+1:], t.Columns[pos:])
	t.Columns[pos] = name
	for _, row := range t.Rows {
		row[name] = value
	}
}
