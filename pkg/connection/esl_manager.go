package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cgrates/fsock"

	"github.com/luongdev/fsmeasure/pkg/config"
	"github.com/luongdev/fsmeasure/pkg/logger"
)

// SubscribedEvents are the channel events the measurement pipeline consumes
var SubscribedEvents = []string{
	"CHANNEL_CREATE",
	"CHANNEL_ORIGINATE",
	"CHANNEL_ANSWER",
	"CHANNEL_HANGUP",
}

const (
	maxReconnects        = -1 // reconnect forever
	maxReconnectInterval = 30 * time.Second
	replyTimeout         = 5 * time.Second
)

// eslClient is the part of *fsock.FSock the manager relies on
type eslClient interface {
	Connected() bool
	Disconnect() error
}

// dialFunc opens one ESL connection; onEvent receives raw event bodies
type dialFunc func(inst config.FSConfig, connIdx int, onEvent func(raw string, connIdx int), stopErr chan error) (eslClient, error)

type instanceConn struct {
	cfg         config.FSConfig
	client      eslClient
	stopErr     chan error
	lastError   error
	lastEventAt time.Time
}

type eslManager struct {
	instances []config.FSConfig
	handler   EventHandler
	dial      dialFunc

	mu     sync.RWMutex
	conns  map[string]*instanceConn
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewESLManager creates a connection manager that feeds every subscribed
// event of every instance into handler
func NewESLManager(instances []config.FSConfig, handler EventHandler) ConnectionManager {
	return newESLManager(instances, handler, dialFSock)
}

func newESLManager(instances []config.FSConfig, handler EventHandler, dial dialFunc) *eslManager {
	return &eslManager{
		instances: instances,
		handler:   handler,
		dial:      dial,
		conns:     make(map[string]*instanceConn),
	}
}

// Start connects to every instance. An instance that cannot be reached is
// logged and reported through GetStatus; Start fails only if none connect.
func (m *eslManager) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	connected := 0
	for idx, inst := range m.instances {
		conn := &instanceConn{cfg: inst, stopErr: make(chan error, 1)}
		m.mu.Lock()
		m.conns[inst.Name] = conn
		m.mu.Unlock()

		client, err := m.dial(inst, idx, m.eventCallback(inst.Name), conn.stopErr)
		if err != nil {
			m.setError(inst.Name, err)
			logger.ErrorWithFields(map[string]interface{}{
				"fs_instance": inst.Name,
				"address":     inst.Address(),
				"error":       err.Error(),
			}, "Failed to connect to FreeSWITCH")
			continue
		}

		m.mu.Lock()
		conn.client = client
		m.mu.Unlock()
		connected++

		m.wg.Add(1)
		go m.watch(conn)

		logger.InfoWithFields(map[string]interface{}{
			"fs_instance": inst.Name,
			"address":     inst.Address(),
		}, "Connected to FreeSWITCH")
	}

	if connected == 0 && len(m.instances) > 0 {
		return fmt.Errorf("failed to connect to any of %d FreeSWITCH instances", len(m.instances))
	}
	return nil
}

// watch records the error that ends a connection's event loop
func (m *eslManager) watch(conn *instanceConn) {
	defer m.wg.Done()
	select {
	case err := <-conn.stopErr:
		if err != nil {
			m.setError(conn.cfg.Name, err)
			logger.WarnWithFields(map[string]interface{}{
				"fs_instance": conn.cfg.Name,
				"error":       err.Error(),
			}, "ESL connection stopped")
		}
	case <-m.ctx.Done():
	}
}

func (m *eslManager) eventCallback(instanceName string) func(string, int) {
	return func(raw string, _ int) {
		event := ParseEvent(raw)

		m.mu.Lock()
		if conn, ok := m.conns[instanceName]; ok {
			conn.lastEventAt = time.Now()
		}
		m.mu.Unlock()

		if err := m.handler(m.ctx, event, instanceName); err != nil {
			logger.WarnWithFields(map[string]interface{}{
				"fs_instance": instanceName,
				"event_type":  event.Name(),
				"error":       err.Error(),
			}, "Failed to process event")
		}
	}
}

func (m *eslManager) setError(instanceName string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn, ok := m.conns[instanceName]; ok {
		conn.lastError = err
	}
}

// Stop disconnects every instance
func (m *eslManager) Stop() error {
	if m.cancel != nil {
		m.cancel()
	}

	m.mu.RLock()
	var firstErr error
	for name, conn := range m.conns {
		if conn.client == nil {
			continue
		}
		if err := conn.client.Disconnect(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("disconnect %s: %w", name, err)
		}
	}
	m.mu.RUnlock()

	m.wg.Wait()
	logger.Info("ESL connections closed")
	return firstErr
}

// GetStatus returns connection status for all instances
func (m *eslManager) GetStatus() map[string]ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]ConnectionStatus, len(m.conns))
	for name, conn := range m.conns {
		status[name] = ConnectionStatus{
			InstanceName: name,
			Connected:    conn.client != nil && conn.client.Connected(),
			LastError:    conn.lastError,
			LastEventAt:  conn.lastEventAt,
		}
	}
	return status
}

func dialFSock(inst config.FSConfig, connIdx int, onEvent func(string, int), stopErr chan error) (eslClient, error) {
	handlers := make(map[string][]func(string, int), len(SubscribedEvents))
	for _, name := range SubscribedEvents {
		handlers[name] = []func(string, int){onEvent}
	}

	fs, err := fsock.NewFSock(inst.Address(), inst.Password, maxReconnects,
		maxReconnectInterval, replyTimeout, backoff, handlers, nil,
		eslLogger{instance: inst.Name}, connIdx, true, stopErr)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

// backoff doubles the reconnect delay from base up to limit
func backoff(base, limit time.Duration) func() time.Duration {
	next := base
	return func() time.Duration {
		d := next
		if next < limit {
			next *= 2
			if next > limit {
				next = limit
			}
		}
		return d
	}
}

// eslLogger adapts the package logger to the syslog-style logger fsock expects
type eslLogger struct {
	instance string
}

func (l eslLogger) fields() map[string]interface{} {
	return map[string]interface{}{"fs_instance": l.instance, "source": "fsock"}
}

func (l eslLogger) Alert(m string) error   { logger.ErrorWithFields(l.fields(), m); return nil }
func (l eslLogger) Close() error           { return nil }
func (l eslLogger) Crit(m string) error    { logger.ErrorWithFields(l.fields(), m); return nil }
func (l eslLogger) Debug(m string) error   { logger.DebugWithFields(l.fields(), m); return nil }
func (l eslLogger) Emerg(m string) error   { logger.ErrorWithFields(l.fields(), m); return nil }
func (l eslLogger) Err(m string) error     { logger.ErrorWithFields(l.fields(), m); return nil }
func (l eslLogger) Info(m string) error    { logger.InfoWithFields(l.fields(), m); return nil }
func (l eslLogger) Notice(m string) error  { logger.InfoWithFields(l.fields(), m); return nil }
func (l eslLogger) Warning(m string) error { logger.WarnWithFields(l.fields(), m); return nil }
