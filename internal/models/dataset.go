package models

// Row maps a column name to its raw value. A nil value is a null cell.
type Row map[string]*string

// Value returns the cell value and whether the column is present and non-null.
func (r Row) Value(column string) (string, bool) {
	v, ok := r[column]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// Clone returns a shallow copy whose cells can be rewritten without touching r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		if v != nil {
			s := *v
			out[k] = &s
			continue
		}
		out[k] = nil
	}
	return out
}

// Columns lists the column names of the row in no particular order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for k := range r {
		cols = append(cols, k)
	}
	return cols
}

// NewRow builds a row from plain strings.
func NewRow(values map[string]string) Row {
	row := make(Row, len(values))
	for k, v := range values {
		s := v
		row[k] = &s
	}
	return row
}

// DatasetSide labels which side of the reconciliation a dataset belongs to.
type DatasetSide string

const (
	SideBO      DatasetSide = "bo"
	SidePartner DatasetSide = "partner"
)

// Dataset is an ordered list of rows plus the side label. Columns preserves
// the header order of the source file when known.
type Dataset struct {
	Side    DatasetSide `json:"side"`
	Columns []string    `json:"columns,omitempty"`
	Rows    []Row       `json:"rows"`
}

// HeaderColumns returns Columns if set, otherwise the sorted column names of row 0.
func (d Dataset) HeaderColumns() []string {
	if len(d.Columns) > 0 {
		return d.Columns
	}
	if len(d.Rows) == 0 {
		return nil
	}
	return SortedColumns(d.Rows[0])
}
