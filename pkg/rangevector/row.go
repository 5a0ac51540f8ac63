// Package rangevector implements the row and range-vector data model: typed
// sample rows, label-set keys, the output step grid, the result schema, and
// the serialized on-heap representation of a materialized range vector.
package rangevector

// ColumnType tags the Go-level type carried by one row column. Column 0 of
// every row is always ColumnTimestamp.
type ColumnType int

const (
	ColumnTimestamp ColumnType = iota
	ColumnDouble
	ColumnHistogram
	ColumnString
)

func (t ColumnType) String() string {
	switch t {
	case ColumnTimestamp:
		return "timestamp"
	case ColumnDouble:
		return "double"
	case ColumnHistogram:
		return "histogram"
	case ColumnString:
		return "string"
	default:
		return "unknown"
	}
}

// Cell is one column slot of a Row. Only the field matching Type is
// meaningful; the others are left at their zero value.
type Cell struct {
	Type ColumnType
	L    int64
	D    float64
	H    Histogram
	S    string
}

// Row is a positional sample tuple, the unit passed through map/reduce/
// present. It exposes positional accessors: GetLong(i), GetDouble(i),
// GetHistogram(i), GetString(i). A single concrete representation
// (rather than one interface implemented by many per-operator struct
// types) is used throughout since every intermediate shape is small and
// the per-operator column layout is already carried alongside it by a
// ResultSchema.
type Row struct {
	Cells []Cell
}

// NewRow allocates a row with n columns, used by newRowToMapInto-style
// accumulator constructors that want a reusable mutable row.
func NewRow(n int) Row {
	return Row{Cells: make([]Cell, n)}
}

// NewTransientRow builds a (timestamp, value) row: mutable, single-shot,
// the common shape produced by a raw sample leaf.
func NewTransientRow(ts int64, v float64) Row {
	return Row{Cells: []Cell{
		{Type: ColumnTimestamp, L: ts},
		{Type: ColumnDouble, D: v},
	}}
}

func (r Row) NumColumns() int { return len(r.Cells) }

func (r Row) GetLong(col int) int64 { return r.Cells[col].L }

func (r Row) GetDouble(col int) float64 { return r.Cells[col].D }

func (r Row) GetHistogram(col int) Histogram { return r.Cells[col].H }

func (r Row) GetString(col int) string { return r.Cells[col].S }

func (r Row) SetLong(col int, v int64) {
	r.Cells[col] = Cell{Type: ColumnTimestamp, L: v}
}

func (r Row) SetDouble(col int, v float64) {
	r.Cells[col] = Cell{Type: ColumnDouble, D: v}
}

func (r Row) SetHistogram(col int, v Histogram) {
	r.Cells[col] = Cell{Type: ColumnHistogram, H: v}
}

func (r Row) SetString(col int, v string) {
	r.Cells[col] = Cell{Type: ColumnString, S: v}
}

// Timestamp is a convenience accessor for the universal column 0.
func (r Row) Timestamp() int64 { return r.GetLong(0) }

// Clone deep-copies the row so the caller may retain it past the lifetime
// of a reused accumulator row.
func (r Row) Clone() Row {
	cells := make([]Cell, len(r.Cells))
	copy(cells, r.Cells)
	for i, c := range r.Cells {
		if len(c.H.Values) > 0 {
			values := make([]float64, len(c.H.Values))
			copy(values, c.H.Values)
			cells[i].H.Values = values
		}
	}
	return Row{Cells: cells}
}
