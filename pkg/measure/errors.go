package measure

import "errors"

var (
	// ErrInvalidCapacity is returned when a buffer is built with capacity <= 0.
	ErrInvalidCapacity = errors.New("capacity must be greater than zero")

	// ErrDivisionByZero is returned by the seizure statistics when start == end.
	ErrDivisionByZero = errors.New("division by zero: start and end index are equal")

	// ErrIndexOutOfRange is returned when a row index falls outside the view.
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrUndefinedRate is returned for a zero time delta under RejectZeroDelta.
	ErrUndefinedRate = errors.New("undefined rate: zero time delta between rows")

	// ErrNonMonotonic is returned when the failed-call counter decreases and
	// the buffer was built with WithMonotonicCheck.
	ErrNonMonotonic = errors.New("num_failed_calls is not monotonically non-decreasing")

	// ErrShapeMismatch is returned when persisted data does not match the Record layout.
	ErrShapeMismatch = errors.New("record shape mismatch")

	// ErrEmptyView is returned when an operation needs at least one row.
	ErrEmptyView = errors.New("view holds no rows")
)
