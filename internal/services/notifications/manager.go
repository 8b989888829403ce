package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/CourierBox/internal/clock"
	"github.com/BearBump/CourierBox/internal/models"
	"github.com/BearBump/CourierBox/internal/session"
	"github.com/pkg/errors"
)

type Config struct {
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
	MaxReconnects     int
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 3 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 5
	}
	return c
}

// Status is a snapshot of the channel for the courier's UI.
type Status struct {
	State       State  `json:"state"`
	Attempts    int    `json:"attempts"`
	Dials       int    `json:"dials"`
	ServerFault bool   `json:"server_fault"`
	Exhausted   bool   `json:"exhausted"`
	LastError   string `json:"last_error,omitempty"`
}

// Manager runs at most one channel, bound to the current access token.
// Each Start/Stop begins a new epoch; callbacks of older epochs are ignored.
type Manager struct {
	transport Transport
	inbox     *Inbox
	sink      Sink
	clock     clock.Clock
	cfg       Config

	mu        sync.Mutex
	epoch     uint64
	state     State
	token     string
	attempts  int
	dials     int
	latched   bool
	exhausted bool
	lastErr   string
	conn      Conn
	cancel    context.CancelFunc
	timer     clock.Timer
}

func NewManager(t Transport, inbox *Inbox, sink Sink, cfg Config, c clock.Clock) *Manager {
	if c == nil {
		c = clock.Real{}
	}
	if sink == nil {
		sink = SinkFunc(func(Toast) {})
	}
	if inbox == nil {
		inbox = NewInbox(nil, c, 0)
	}
	return &Manager{
		transport: t,
		inbox:     inbox,
		sink:      sink,
		clock:     c,
		cfg:       cfg.withDefaults(),
		state:     StateIdle,
	}
}

// Start opens a channel for token, replacing any channel bound to another token.
func (m *Manager) Start(token string) {
	if token == "" {
		m.Stop()
		return
	}

	m.mu.Lock()
	if m.token == token && (m.state == StateConnecting || m.state == StateOpen || m.timer != nil) {
		m.mu.Unlock()
		return
	}
	conn, cancel, timer := m.detachLocked()
	m.epoch++
	epoch := m.epoch
	m.token = token
	m.attempts = 0
	m.latched = false
	m.exhausted = false
	m.lastErr = ""
	m.state = StateConnecting
	m.mu.Unlock()

	release(conn, cancel, timer, "rebind")
	go m.connect(epoch)
}

// Stop tears the channel down with a normal close and cancels a pending reconnect.
func (m *Manager) Stop() {
	m.mu.Lock()
	conn, cancel, timer := m.detachLocked()
	m.epoch++
	m.token = ""
	if m.state != StateIdle {
		m.state = StateClosedClean
	}
	m.mu.Unlock()

	release(conn, cancel, timer, "teardown")
}

// OnSession follows credential changes; it is meant for session.Manager.Subscribe.
func (m *Manager) OnSession(c session.Credentials, ok bool) {
	if !ok {
		m.Stop()
		m.inbox.Reset()
		return
	}
	m.Start(c.AccessToken)
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:       m.state,
		Attempts:    m.attempts,
		Dials:       m.dials,
		ServerFault: m.latched,
		Exhausted:   m.exhausted,
		LastError:   m.lastErr,
	}
}

func (m *Manager) detachLocked() (Conn, context.CancelFunc, clock.Timer) {
	conn, cancel, timer := m.conn, m.cancel, m.timer
	m.conn, m.cancel, m.timer = nil, nil, nil
	return conn, cancel, timer
}

func release(conn Conn, cancel context.CancelFunc, timer clock.Timer, reason string) {
	if timer != nil {
		timer.Stop()
	}
	// close frame goes out before the read loop is cancelled
	if conn != nil {
		if err := conn.Close(CloseNormal, reason); err != nil {
			slog.Warn("notification channel close failed", "error", err.Error())
		}
	}
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) connect(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.state = StateConnecting
	m.dials++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	token := m.token
	m.mu.Unlock()

	var timedOut atomic.Bool
	deadline := m.clock.AfterFunc(m.cfg.ConnectTimeout, func() {
		timedOut.Store(true)
		cancel()
	})
	conn, err := m.transport.Dial(ctx, token)
	deadline.Stop()
	if err == nil && timedOut.Load() {
		_ = conn.Close(CloseNormal, "connect timeout")
		err = ErrConnectTimeout
	}
	if err != nil {
		if timedOut.Load() && !errors.Is(err, ErrConnectTimeout) {
			err = errors.Wrap(ErrConnectTimeout, err.Error())
		}
		m.fail(epoch, err)
		return
	}

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		release(conn, cancel, nil, "superseded")
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.attempts = 0
	m.lastErr = ""
	m.mu.Unlock()
	slog.Info("notification channel open")

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			m.fail(epoch, err)
			return
		}
		m.handleFrame(epoch, data)
	}
}

func (m *Manager) fail(epoch uint64, err error) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.conn = nil
	m.lastErr = err.Error()

	var notice string
	switch classify(err) {
	case failClean:
		m.state = StateClosedClean
		slog.Info("notification channel closed", "reason", err.Error())
	case failServer:
		m.latched = true
		m.state = StateClosedError
		notice = ServerFaultMessage
		slog.Error("notification server fault, reconnects disabled", "error", err.Error())
	default:
		m.state = StateClosedError
		switch {
		case m.latched:
		case m.attempts >= m.cfg.MaxReconnects:
			m.exhausted = true
			notice = ExhaustedMessage
			slog.Error("notification channel gave up", "attempts", m.attempts, "error", err.Error())
		default:
			m.attempts++
			m.timer = m.clock.AfterFunc(m.cfg.ReconnectInterval, func() { go m.connect(epoch) })
			slog.Warn("notification channel lost, reconnect scheduled",
				"attempt", m.attempts, "in", m.cfg.ReconnectInterval, "error", err.Error())
		}
	}
	now := m.clock.Now()
	m.mu.Unlock()

	if notice != "" {
		m.sink.Notify(errorToast(notice, now))
	}
}

// handleFrame drops frames of a torn down or rebound channel; the lock keeps
// Stop from slipping in between the check and the append.
func (m *Manager) handleFrame(epoch uint64, data []byte) {
	var ev models.ChannelEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Warn("malformed notification frame dropped", "error", err.Error())
		return
	}
	if strings.TrimSpace(ev.Message) == "" {
		slog.Warn("notification frame without message dropped")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		slog.Info("notification frame of a closed channel dropped")
		return
	}
	n, added := m.inbox.Append(ev)
	if !added {
		return
	}
	m.sink.Notify(eventToast(n, ev, m.clock.Now()))
}
