package measure

import "fmt"

// Record is one call measurement. All rows of a buffer share this layout.
type Record struct {
	Time                     float64 // wall-clock seconds of the first INVITE
	InviteLatency            float64
	AnswerLatency            float64
	CallSetupLatency         float64
	OriginateLatency         float64
	OriginateToInviteLatency float64
	NumFailedCalls           uint32 // cumulative
	NumSessions              uint32 // live sessions when the row was recorded
}

// NewRecord builds a Record from every field in layout order. Producers should
// prefer it over a struct literal so that no field is left at its zero value
// by accident.
func NewRecord(
	time, inviteLatency, answerLatency, callSetupLatency,
	originateLatency, originateToInviteLatency float64,
	numFailedCalls, numSessions uint32,
) Record {
	return Record{
		Time:                     time,
		InviteLatency:            inviteLatency,
		AnswerLatency:            answerLatency,
		CallSetupLatency:         callSetupLatency,
		OriginateLatency:         originateLatency,
		OriginateToInviteLatency: originateToInviteLatency,
		NumFailedCalls:           numFailedCalls,
		NumSessions:              numSessions,
	}
}

// Field identifies one column of the Record layout.
type Field int

const (
	FieldTime Field = iota
	FieldInviteLatency
	FieldAnswerLatency
	FieldCallSetupLatency
	FieldOriginateLatency
	FieldOriginateToInviteLatency
	FieldNumFailedCalls
	FieldNumSessions

	numFields
)

var fieldNames = [numFields]string{
	FieldTime:                     "time",
	FieldInviteLatency:            "invite_latency",
	FieldAnswerLatency:            "answer_latency",
	FieldCallSetupLatency:         "call_setup_latency",
	FieldOriginateLatency:         "originate_latency",
	FieldOriginateToInviteLatency: "originate_to_invite_latency",
	FieldNumFailedCalls:           "num_failed_calls",
	FieldNumSessions:              "num_sessions",
}

// String returns the column name of the field.
func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// IsCounter reports whether the field is stored as a uint32 counter.
func (f Field) IsCounter() bool {
	return f == FieldNumFailedCalls || f == FieldNumSessions
}

// ParseField maps a column name to its Field.
func ParseField(name string) (Field, error) {
	for i, n := range fieldNames {
		if n == name {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", name)
}

// Fields returns every field in layout order.
func Fields() []Field {
	fields := make([]Field, numFields)
	for i := range fields {
		fields[i] = Field(i)
	}
	return fields
}

// Value returns the field of r as a float64. It panics on an unknown field.
func (r Record) Value(f Field) float64 {
	switch f {
	case FieldTime:
		return r.Time
	case FieldInviteLatency:
		return r.InviteLatency
	case FieldAnswerLatency:
		return r.AnswerLatency
	case FieldCallSetupLatency:
		return r.CallSetupLatency
	case FieldOriginateLatency:
		return r.OriginateLatency
	case FieldOriginateToInviteLatency:
		return r.OriginateToInviteLatency
	case FieldNumFailedCalls:
		return float64(r.NumFailedCalls)
	case FieldNumSessions:
		return float64(r.NumSessions)
	default:
		panic(fmt.Sprintf("measure: invalid field %d", int(f)))
	}
}
