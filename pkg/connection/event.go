package connection

import (
	"strconv"
	"time"

	"github.com/cgrates/fsock"
)

// FSEvent is a FreeSWITCH event as a set of headers
type FSEvent struct {
	Headers map[string]string
}

// ParseEvent converts a raw plain-text ESL event into an FSEvent
func ParseEvent(raw string) *FSEvent {
	return &FSEvent{Headers: fsock.FSEventStrToMap(raw, nil)}
}

// NewEvent builds an event from headers, mostly for tests and replays
func NewEvent(headers map[string]string) *FSEvent {
	return &FSEvent{Headers: headers}
}

// GetHeader returns a header value; ParseEvent has already URL-decoded it
func (e *FSEvent) GetHeader(name string) string {
	return e.Headers[name]
}

// Name returns the Event-Name header
func (e *FSEvent) Name() string {
	return e.GetHeader("Event-Name")
}

// Timestamp returns Event-Date-Timestamp (microseconds since epoch) as
// seconds. ok is false when the header is missing or malformed.
func (e *FSEvent) Timestamp() (seconds float64, ok bool) {
	us, err := strconv.ParseInt(e.GetHeader("Event-Date-Timestamp"), 10, 64)
	if err != nil {
		return 0, false
	}
	return float64(us) / float64(time.Second/time.Microsecond), true
}
