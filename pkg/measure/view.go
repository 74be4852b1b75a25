package measure

import "sort"

// View is a read-only snapshot of a buffer's valid rows in insertion order.
// It is not refreshed by later inserts; take a new one instead.
type View struct {
	rows []Record
	opts *options
}

// NewView builds a view over a copy of rows with default statistics options.
func NewView(rows []Record) *View {
	cp := make([]Record, len(rows))
	copy(cp, rows)
	return &View{rows: cp, opts: applyOptions()}
}

// Len returns the number of rows in the view.
func (v *View) Len() int {
	return len(v.rows)
}

// Row returns the i-th row. It panics when i is out of range, like a slice.
func (v *View) Row(i int) Record {
	return v.rows[i]
}

// Rows returns a copy of all rows.
func (v *View) Rows() []Record {
	out := make([]Record, len(v.rows))
	copy(out, v.rows)
	return out
}

// Column projects one field across every row as float64. It panics when f is
// not one of Fields(); use ColumnByName for untrusted input.
func (v *View) Column(f Field) []float64 {
	out := make([]float64, len(v.rows))
	for i, r := range v.rows {
		out[i] = r.Value(f)
	}
	return out
}

// ColumnByName is Column keyed by the field's column name.
func (v *View) ColumnByName(name string) ([]float64, error) {
	f, err := ParseField(name)
	if err != nil {
		return nil, err
	}
	return v.Column(f), nil
}

func (v *View) Times() []float64 { return v.Column(FieldTime) }

func (v *View) InviteLatencies() []float64 { return v.Column(FieldInviteLatency) }

func (v *View) AnswerLatencies() []float64 { return v.Column(FieldAnswerLatency) }

func (v *View) CallSetupLatencies() []float64 { return v.Column(FieldCallSetupLatency) }

func (v *View) OriginateLatencies() []float64 { return v.Column(FieldOriginateLatency) }

func (v *View) OriginateToInviteLatencies() []float64 {
	return v.Column(FieldOriginateToInviteLatency)
}

// FailedCalls returns the cumulative failed-call counter column.
func (v *View) FailedCalls() []uint32 {
	out := make([]uint32, len(v.rows))
	for i, r := range v.rows {
		out[i] = r.NumFailedCalls
	}
	return out
}

// Sessions returns the live session count column.
func (v *View) Sessions() []uint32 {
	out := make([]uint32, len(v.rows))
	for i, r := range v.rows {
		out[i] = r.NumSessions
	}
	return out
}

// Buffer returns a fully populated buffer holding a copy of the view's rows,
// ready to be persisted.
func (v *View) Buffer(opts ...Option) (*CallMetrics, error) {
	return FromRecords(v.rows, opts...)
}

// SortedByTime returns a new view with the rows ordered by ascending Time.
// Rows with equal times keep their insertion order.
func (v *View) SortedByTime() *View {
	rows := v.Rows()
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time < rows[j].Time })
	return &View{rows: rows, opts: v.opts}
}
