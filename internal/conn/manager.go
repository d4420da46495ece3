// Package conn owns the websocket push channel for one screen family.
// The manager handles the connection lifecycle (connect, pause, resume,
// disconnect) and moves inbound frames onto the bus; it knows nothing
// about specific event payloads.
package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mmarins/livewire/internal/bus"
	"github.com/mmarins/livewire/internal/status"
	"go.uber.org/zap"
)

// Settings bound the manager's I/O.
type Settings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	AckTimeout       time.Duration
}

// DefaultSettings returns the timeouts used in production.
func DefaultSettings() Settings {
	return Settings{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		AckTimeout:       10 * time.Second,
	}
}

// Manager owns one logical push-channel connection. Inbound event
// frames are published on the bus as "push.<family>.<event>" with the
// raw JSON payload; delivery stops while paused without closing the
// socket.
type Manager struct {
	family   string
	bus      *bus.Bus
	machine  *status.Machine
	logger   *zap.Logger
	settings Settings

	paused atomic.Bool

	writeMu sync.Mutex
	ws      *websocket.Conn

	ackMu   sync.Mutex
	nextAck int64
	pending map[int64]chan json.RawMessage
}

// NewManager creates a disconnected manager for the given family.
func NewManager(family string, b *bus.Bus, m *status.Machine, logger *zap.Logger, settings Settings) *Manager {
	return &Manager{
		family:   family,
		bus:      b,
		machine:  m,
		logger:   logger,
		settings: settings,
		pending:  make(map[int64]chan json.RawMessage),
	}
}

// IsConnected reports whether events are currently being delivered.
func (m *Manager) IsConnected() bool {
	return m.machine.IsConnected()
}

// Connect dials the endpoint and starts the read pump. Idempotent when
// already connected. Failure is reported as false, never a panic or an
// error value; callers surface a retryable message and may call Connect
// again.
func (m *Manager) Connect(endpoint string) bool {
	switch m.machine.Current() {
	case status.Connected, status.Paused:
		return true
	case status.Closed:
		_ = m.machine.Transition(status.Idle)
	}

	if err := m.machine.Transition(status.Connecting); err != nil {
		m.logger.Warn("connect rejected", zap.String("state", string(m.machine.Current())))
		return false
	}

	dialer := websocket.Dialer{HandshakeTimeout: m.settings.HandshakeTimeout}
	ws, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		m.logger.Warn("push channel dial failed", zap.String("endpoint", endpoint), zap.Error(err))
		_ = m.machine.Transition(status.Idle)
		return false
	}

	m.writeMu.Lock()
	m.ws = ws
	m.writeMu.Unlock()
	m.paused.Store(false)

	if err := m.machine.Transition(status.Connected); err != nil {
		_ = ws.Close()
		return false
	}

	go m.readPump(ws)
	m.logger.Info("push channel connected", zap.String("family", m.family), zap.String("endpoint", endpoint))
	return true
}

// Pause stops event delivery without closing the socket. Frames read
// while paused are dropped.
func (m *Manager) Pause() {
	if err := m.machine.Transition(status.Paused); err != nil {
		return
	}
	m.paused.Store(true)
}

// Resume re-attaches delivery after a Pause.
func (m *Manager) Resume() {
	if err := m.machine.Transition(status.Connected); err != nil {
		return
	}
	m.paused.Store(false)
}

// Disconnect tears the channel down fully and fails every in-flight
// ack wait.
func (m *Manager) Disconnect() {
	_ = m.machine.Transition(status.Closed)

	m.writeMu.Lock()
	ws := m.ws
	m.ws = nil
	m.writeMu.Unlock()
	if ws != nil {
		_ = ws.Close()
	}

	m.ackMu.Lock()
	for id, ch := range m.pending {
		close(ch)
		delete(m.pending, id)
	}
	m.ackMu.Unlock()
}

// Emit writes a fire-and-forget event frame.
func (m *Manager) Emit(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return m.write(Frame{Event: event, Payload: raw})
}

// EmitWithAck writes an event frame carrying an ack ID and waits for
// the server's matching acknowledgment payload.
func (m *Manager) EmitWithAck(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}

	m.ackMu.Lock()
	m.nextAck++
	id := m.nextAck
	ch := make(chan json.RawMessage, 1)
	m.pending[id] = ch
	m.ackMu.Unlock()

	defer func() {
		m.ackMu.Lock()
		delete(m.pending, id)
		m.ackMu.Unlock()
	}()

	if err := m.write(Frame{Event: event, Payload: raw, AckID: id}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(m.settings.AckTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s: connection closed before ack", event)
		}
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s: ack timeout", event)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) write(frame Frame) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if m.ws == nil {
		return fmt.Errorf("push channel not connected")
	}
	_ = m.ws.SetWriteDeadline(time.Now().Add(m.settings.WriteTimeout))
	return m.ws.WriteJSON(frame)
}

func (m *Manager) readPump(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if m.machine.Current() == status.Connected || m.machine.Current() == status.Paused {
				m.logger.Warn("push channel read failed", zap.String("family", m.family), zap.Error(err))
				_ = m.machine.Transition(status.Reconnecting)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			m.logger.Debug("dropping unparseable frame", zap.String("family", m.family), zap.Error(err))
			continue
		}

		if frame.Event == AckEvent && frame.AckID != 0 {
			m.ackMu.Lock()
			if ch, ok := m.pending[frame.AckID]; ok {
				ch <- frame.Payload
				delete(m.pending, frame.AckID)
			}
			m.ackMu.Unlock()
			continue
		}

		if m.paused.Load() {
			continue
		}

		m.bus.Publish(bus.Event{
			Kind:      "push." + m.family + "." + frame.Event,
			Timestamp: time.Now(),
			Payload:   frame.Payload,
		})
	}
}
