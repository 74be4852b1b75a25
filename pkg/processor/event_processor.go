package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luongdev/fsmeasure/pkg/connection"
	"github.com/luongdev/fsmeasure/pkg/logger"
	"github.com/luongdev/fsmeasure/pkg/measure"
	"github.com/luongdev/fsmeasure/pkg/metrics"
	"github.com/luongdev/fsmeasure/pkg/store"
)

// EventProcessor turns FreeSWITCH channel events into call measurement rows
type EventProcessor interface {
	// ProcessEvent handles one event and routes it to the appropriate handler
	ProcessEvent(ctx context.Context, event *connection.FSEvent, instanceName string) error

	// Start begins event processing
	Start(ctx context.Context) error

	// Stop waits for pending snapshots and writes a final one
	Stop() error

	// Buffer returns the call metrics buffer rows are inserted into
	Buffer() *measure.CallMetrics
}

// Options configures an event processor
type Options struct {
	// Store receives a snapshot on every rollover and on Stop; nil disables snapshots
	Store store.SnapshotStore

	// KeyPrefix prefixes snapshot keys
	KeyPrefix string

	// Now is the local clock, time.Now when nil
	Now func() time.Time
}

// session holds the timestamps of one channel, in seconds
type session struct {
	uuid         string
	create       float64
	answer       float64
	originate    float64
	reqOriginate float64
	answered     bool
	originated   bool
}

// call groups the sessions (legs) sharing a correlation id
type call struct {
	id       string
	first    *session
	last     *session
	live     map[string]*session
	recorded bool
}

// eventProcessor implements EventProcessor interface
type eventProcessor struct {
	buffer    *measure.CallMetrics
	store     store.SnapshotStore
	keyPrefix string
	sessionID string
	now       func() time.Time

	mu          sync.Mutex
	calls       map[string]*call // by correlation id
	sessions    map[string]*call // by channel Unique-ID
	failedCalls uint32
	laps        int

	snapshots sync.WaitGroup
}

// NewEventProcessor creates a new event processor writing into buffer
func NewEventProcessor(buffer *measure.CallMetrics, opts Options) EventProcessor {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &eventProcessor{
		buffer:    buffer,
		store:     opts.Store,
		keyPrefix: opts.KeyPrefix,
		sessionID: uuid.NewString(),
		now:       now,
		calls:     make(map[string]*call),
		sessions:  make(map[string]*call),
	}
}

func (ep *eventProcessor) Buffer() *measure.CallMetrics {
	return ep.buffer
}

// Start begins event processing
func (ep *eventProcessor) Start(ctx context.Context) error {
	logger.InfoWithFields(map[string]interface{}{
		"session_id": ep.sessionID,
		"capacity":   ep.buffer.Capacity(),
	}, "Event processor started")
	return nil
}

// Stop waits for in-flight snapshots, then saves the buffer one last time
func (ep *eventProcessor) Stop() error {
	ep.snapshots.Wait()

	if ep.store != nil && ep.buffer.Len() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := ep.saveSnapshot(ctx, ep.buffer.View(), "final"); err != nil {
			return err
		}
	}
	logger.Info("Event processor stopped")
	return nil
}

// ProcessEvent routes events to appropriate handlers based on event name
func (ep *eventProcessor) ProcessEvent(ctx context.Context, event *connection.FSEvent, instanceName string) error {
	if event == nil {
		return fmt.Errorf("received nil event")
	}

	eventName := event.Name()
	if eventName == "" {
		return fmt.Errorf("event missing Event-Name header")
	}

	m := metrics.GetMetrics()
	m.IncrementEventsReceived(instanceName, eventName)

	logger.DebugWithFields(map[string]interface{}{
		"fs_instance": instanceName,
		"event_type":  eventName,
	}, "Processing event")

	channelID := event.GetHeader("Unique-ID")
	if channelID == "" {
		return fmt.Errorf("%s event missing Unique-ID", eventName)
	}

	var err error
	switch eventName {
	case "CHANNEL_CREATE":
		err = ep.handleChannelCreate(event, channelID)
	case "CHANNEL_ORIGINATE":
		err = ep.handleChannelOriginate(event, channelID)
	case "CHANNEL_ANSWER":
		err = ep.handleChannelAnswer(event, channelID)
	case "CHANNEL_HANGUP":
		var lap int
		lap, err = ep.handleChannelHangup(event, channelID, instanceName)
		if lap > 0 {
			ep.snapshotAsync(ctx, fmt.Sprintf("%06d", lap))
		}
	default:
		logger.DebugWithFields(map[string]interface{}{
			"fs_instance": instanceName,
			"event_type":  eventName,
		}, "Skipping unknown event type")
		return nil
	}

	if err == nil {
		m.IncrementEventsProcessed(instanceName, eventName)
	}
	return err
}

// extractCorrelationID groups the legs of a bridged call under the A-leg id
func (ep *eventProcessor) extractCorrelationID(event *connection.FSEvent) string {
	for _, header := range []string{
		"Other-Leg-Unique-ID",
		"Unique-ID",
		"variable_sip_call_id",
		"variable_global_call_id",
	} {
		if id := event.GetHeader(header); id != "" {
			return id
		}
	}
	return ""
}

func (ep *eventProcessor) eventTime(event *connection.FSEvent) float64 {
	if ts, ok := event.Timestamp(); ok {
		return ts
	}
	return unixSeconds(ep.now())
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// handleChannelCreate registers a new session on its call
func (ep *eventProcessor) handleChannelCreate(event *connection.FSEvent, channelID string) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	if _, exists := ep.sessions[channelID]; exists {
		return fmt.Errorf("duplicate CHANNEL_CREATE for %s", channelID)
	}

	callID := ep.extractCorrelationID(event)
	c, ok := ep.calls[callID]
	if !ok {
		c = &call{id: callID, live: make(map[string]*session)}
		ep.calls[callID] = c
	}

	s := &session{uuid: channelID, create: ep.eventTime(event)}
	if c.first == nil {
		c.first = s
	}
	c.last = s
	c.live[channelID] = s
	ep.sessions[channelID] = c

	metrics.GetMetrics().SetActiveSessions(len(ep.sessions))
	logger.DebugWithFields(map[string]interface{}{
		"channel_id":     channelID,
		"correlation_id": callID,
	}, "Session created")
	return nil
}

func (ep *eventProcessor) lookup(channelID string) (*call, *session, error) {
	c, ok := ep.sessions[channelID]
	if !ok {
		return nil, nil, fmt.Errorf("unknown session %s", channelID)
	}
	return c, c.live[channelID], nil
}

// handleChannelOriginate stores the originate event time and its local receipt time
func (ep *eventProcessor) handleChannelOriginate(event *connection.FSEvent, channelID string) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	_, s, err := ep.lookup(channelID)
	if err != nil {
		return err
	}
	s.originate = ep.eventTime(event)
	s.reqOriginate = unixSeconds(ep.now())
	s.originated = true
	return nil
}

func (ep *eventProcessor) handleChannelAnswer(event *connection.FSEvent, channelID string) error {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	_, s, err := ep.lookup(channelID)
	if err != nil {
		return err
	}
	s.answer = ep.eventTime(event)
	s.answered = true
	return nil
}

// handleChannelHangup removes the session. The first leg to hang up while its
// peer is still live records the call's row; a call that ends without ever
// being answered or recorded counts as failed. lap is non-zero when the
// insert completed a lap of the buffer.
func (ep *eventProcessor) handleChannelHangup(event *connection.FSEvent, channelID, instanceName string) (lap int, err error) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	c, s, err := ep.lookup(channelID)
	if err != nil {
		return 0, err
	}
	delete(c.live, channelID)
	delete(ep.sessions, channelID)
	metrics.GetMetrics().SetActiveSessions(len(ep.sessions))

	if len(c.live) == 0 {
		delete(ep.calls, c.id)
		if !c.recorded && !c.first.answered && !s.answered {
			ep.failedCalls++
			metrics.GetMetrics().IncrementCallsFailed(instanceName)
			logger.DebugWithFields(map[string]interface{}{
				"correlation_id": c.id,
				"hangup_cause":   event.GetHeader("Hangup-Cause"),
				"failed_calls":   ep.failedCalls,
			}, "Call failed")
		}
		return 0, nil
	}
	if c.recorded {
		return 0, nil
	}

	c.recorded = true
	rec := ep.buildRecord(c)
	rollover := ep.buffer.Insert(rec)
	metrics.GetMetrics().IncrementCallsRecorded(instanceName)

	logger.DebugWithFields(map[string]interface{}{
		"correlation_id":     c.id,
		"fs_instance":        instanceName,
		"call_setup_latency": rec.CallSetupLatency,
		"index":              ep.buffer.Index(),
	}, "Call recorded")

	if !rollover {
		return 0, nil
	}
	ep.laps++
	logger.WarnWithFields(map[string]interface{}{
		"capacity": ep.buffer.Capacity(),
		"lap":      ep.laps,
	}, "Resetting metric buffer index")
	return ep.laps, nil
}

func (ep *eventProcessor) buildRecord(c *call) measure.Record {
	first, last := c.first, c.last

	var originateLatency, originateToInvite float64
	if first.originated {
		originateLatency = first.reqOriginate - first.originate
		originateToInvite = first.originate - first.create
	}

	return measure.NewRecord(
		first.create,
		last.create-first.create,
		last.answer-first.answer,
		first.answer-first.create,
		originateLatency,
		originateToInvite,
		ep.failedCalls,
		uint32(len(ep.sessions)),
	)
}

// snapshotAsync saves the current view without blocking event delivery.
// It must be called without ep.mu held: View copies the whole buffer.
func (ep *eventProcessor) snapshotAsync(ctx context.Context, name string) {
	if ep.store == nil {
		return
	}
	view := ep.buffer.View()
	ep.snapshots.Add(1)
	go func() {
		defer ep.snapshots.Done()
		if err := ep.saveSnapshot(context.WithoutCancel(ctx), view, name); err != nil {
			logger.Error("Rollover snapshot failed: %v", err)
		}
	}()
}

func (ep *eventProcessor) snapshotKey(name string) string {
	key := ep.sessionID + "/" + name
	if ep.keyPrefix != "" {
		key = ep.keyPrefix + "/" + key
	}
	return key
}

func (ep *eventProcessor) saveSnapshot(ctx context.Context, view *measure.View, name string) error {
	key := ep.snapshotKey(name)
	snap, err := view.Buffer(measure.WithTitle(key))
	if err != nil {
		metrics.GetMetrics().IncrementSnapshots("error")
		return fmt.Errorf("snapshot %s: %w", key, err)
	}
	if err := ep.store.Save(ctx, key, snap); err != nil {
		metrics.GetMetrics().IncrementSnapshots("error")
		return err
	}
	metrics.GetMetrics().IncrementSnapshots("ok")
	logger.InfoWithFields(map[string]interface{}{
		"key":  key,
		"rows": snap.Len(),
	}, "Saved call metrics snapshot")
	return nil
}
