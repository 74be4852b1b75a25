package measure

import (
	"fmt"
	"sync"
)

// DefaultCapacity is the row capacity used when none is configured.
const DefaultCapacity = 1 << 20

// CallMetrics is a capped ring of call measurement rows.
//
// A single producer calls Insert; any number of readers may call View
// concurrently. View copies the valid rows under the same lock Insert takes,
// so a reader never sees a half-written row.
type CallMetrics struct {
	mu       sync.RWMutex
	rows     []Record
	capacity int
	index    uint64 // logical insert count, never wraps
	metrics  *bufferMetrics
	opts     *options
}

// New creates an empty buffer holding at most capacity rows.
func New(capacity int, opts ...Option) (*CallMetrics, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("new call metrics buffer: %w", ErrInvalidCapacity)
	}
	return newCallMetrics(make([]Record, capacity), 0, applyOptions(opts...))
}

// FromRecords wraps rows as a fully populated buffer: its capacity is
// len(rows) and its index equals its capacity. rows is copied.
func FromRecords(rows []Record, opts ...Option) (*CallMetrics, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("wrap records: %w", ErrInvalidCapacity)
	}
	buf := make([]Record, len(rows))
	copy(buf, rows)
	return newCallMetrics(buf, uint64(len(buf)), applyOptions(opts...))
}

func newCallMetrics(rows []Record, index uint64, opts *options) (*CallMetrics, error) {
	cm := &CallMetrics{
		rows:     rows,
		capacity: len(rows),
		index:    index,
		opts:     opts,
	}
	if opts.metricsReg != nil {
		m, err := newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, fmt.Errorf("register buffer metrics: %w", err)
		}
		cm.metrics = m
	}
	return cm, nil
}

// Insert writes rec at the current index and advances it. Once the buffer is
// full the oldest row is overwritten. The return value is true only for the
// insertion that lands in slot 0 after at least one full lap.
func (cm *CallMetrics) Insert(rec Record) bool {
	cm.mu.Lock()
	slot := int(cm.index % uint64(cm.capacity))
	rollover := slot == 0 && cm.index >= uint64(cm.capacity)
	cm.rows[slot] = rec
	cm.index++
	index := cm.index
	rows := cm.lenLocked()
	cm.mu.Unlock()

	if cm.metrics != nil {
		cm.metrics.recordInsert(rows, cm.capacity, rollover)
	}
	if rollover && cm.opts.onRollover != nil {
		cm.opts.onRollover(index)
	}
	return rollover
}

// View returns a snapshot of the valid rows, oldest first.
func (cm *CallMetrics) View() *View {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	n := cm.lenLocked()
	rows := make([]Record, n)
	if cm.index <= uint64(cm.capacity) {
		copy(rows, cm.rows[:n])
	} else {
		// after a wrap the oldest row sits at the next write slot
		start := int(cm.index % uint64(cm.capacity))
		k := copy(rows, cm.rows[start:])
		copy(rows[k:], cm.rows[:start])
	}
	return &View{rows: rows, opts: cm.opts}
}

// Index returns the logical number of rows inserted so far.
func (cm *CallMetrics) Index() uint64 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.index
}

// Len returns the number of valid rows, min(Index, Capacity).
func (cm *CallMetrics) Len() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.lenLocked()
}

// Capacity returns the fixed row capacity.
func (cm *CallMetrics) Capacity() int {
	return cm.capacity
}

// Title returns the buffer name, empty unless set via WithTitle.
func (cm *CallMetrics) Title() string {
	return cm.opts.title
}

func (cm *CallMetrics) lenLocked() int {
	if cm.index < uint64(cm.capacity) {
		return int(cm.index)
	}
	return cm.capacity
}
