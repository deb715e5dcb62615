package pokerclient

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/weedbox/timebank"
	"go.uber.org/zap"
)

type ConnState string

const (
	ConnState_Disconnected   ConnState = "disconnected"
	ConnState_Connecting     ConnState = "connecting"
	ConnState_Authenticating ConnState = "authenticating"
	ConnState_Connected      ConnState = "connected"
)

// ConnectionManager owns the connect/auth/keep-alive/reconnect
// lifecycle of the single physical connection. Its state value is the
// only way external code observes connection health.
type ConnectionManager interface {
	// Events
	OnStateChanged(fn func(oldState, newState ConnState))
	OnConnectionLost(fn func(err error))
	OnMessage(fn func(msg *Message))

	// Actions
	Connect(token string) error
	Disconnect() error

	// Getters
	State() ConnState
	Transport() Transport
}

type ConnectionManagerOpt func(*connectionManager)

type connectionManager struct {
	mu               sync.Mutex
	serverURL        string
	newTransport     func() Transport
	transport        Transport
	state            ConnState
	token            string
	attempts         int
	lostNotified     bool
	authTimeout      time.Duration
	keepAlive        time.Duration
	reconnectBase    time.Duration
	reconnectMax     time.Duration
	maxAttempts      int
	authTimer        *timebank.TimeBank
	pingTimer        *timebank.TimeBank
	reconnectTimer   *timebank.TimeBank
	waiters          []chan error
	onStateChanged   func(ConnState, ConnState)
	onConnectionLost func(error)
	onMessage        func(*Message)
	logger           *zap.Logger
}

func NewConnectionManager(serverURL string, opts ...ConnectionManagerOpt) ConnectionManager {
	cm := &connectionManager{
		serverURL:        serverURL,
		newTransport:     NewWebSocketTransport,
		state:            ConnState_Disconnected,
		authTimeout:      DefaultAuthTimeout,
		keepAlive:        DefaultKeepAliveInterval,
		reconnectBase:    ReconnectBaseDelay,
		reconnectMax:     ReconnectMaxDelay,
		maxAttempts:      ReconnectMaxAttempts,
		authTimer:        timebank.NewTimeBank(),
		pingTimer:        timebank.NewTimeBank(),
		reconnectTimer:   timebank.NewTimeBank(),
		onStateChanged:   func(ConnState, ConnState) {},
		onConnectionLost: func(error) {},
		onMessage:        func(*Message) {},
		logger:           zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cm)
	}

	return cm
}

func WithTransportFactory(factory func() Transport) ConnectionManagerOpt {
	return func(cm *connectionManager) {
		cm.newTransport = factory
	}
}

func WithAuthTimeout(d time.Duration) ConnectionManagerOpt {
	return func(cm *connectionManager) {
		cm.authTimeout = d
	}
}

func WithKeepAliveInterval(d time.Duration) ConnectionManagerOpt {
	return func(cm *connectionManager) {
		cm.keepAlive = d
	}
}

func WithConnectionLogger(logger *zap.Logger) ConnectionManagerOpt {
	return func(cm *connectionManager) {
		if logger != nil {
			cm.logger = logger
		}
	}
}

func (cm *connectionManager) OnStateChanged(fn func(ConnState, ConnState)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.onStateChanged = fn
}

func (cm *connectionManager) OnConnectionLost(fn func(error)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.onConnectionLost = fn
}

func (cm *connectionManager) OnMessage(fn func(*Message)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.onMessage = fn
}

func (cm *connectionManager) State() ConnState {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.state
}

func (cm *connectionManager) Transport() Transport {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.transport
}

// transitionLocked updates the state and returns the callback to fire
// once the lock has been released.
func (cm *connectionManager) transitionLocked(newState ConnState) func() {
	oldState := cm.state
	if oldState == newState {
		return func() {}
	}

	cm.state = newState
	fn := cm.onStateChanged
	return func() { fn(oldState, newState) }
}

// Connect resolves once authentication completes or fails. Concurrent
// calls with the same token share the in-flight attempt instead of
// opening a second physical connection; a different token tears the
// existing connection down first.
func (cm *connectionManager) Connect(token string) error {
	if token == "" {
		return ErrConnectionTokenRequired
	}

	cm.mu.Lock()
	if cm.state != ConnState_Disconnected {
		if token == cm.token {
			if cm.state == ConnState_Connected {
				cm.mu.Unlock()
				return nil
			}

			ch := make(chan error, 1)
			cm.waiters = append(cm.waiters, ch)
			cm.mu.Unlock()
			return <-ch
		}

		cm.mu.Unlock()
		_ = cm.Disconnect()
		cm.mu.Lock()
	}

	cm.token = token
	cm.attempts = 0
	cm.lostNotified = false
	ch := make(chan error, 1)
	cm.waiters = append(cm.waiters, ch)
	fire := cm.transitionLocked(ConnState_Connecting)
	cm.mu.Unlock()

	fire()
	cm.dial()

	return <-ch
}

func (cm *connectionManager) dial() {
	cm.mu.Lock()
	if cm.token == "" {
		cm.mu.Unlock()
		return
	}

	fire := cm.transitionLocked(ConnState_Connecting)
	t := cm.newTransport()
	cm.transport = t
	url := cm.serverURL
	token := cm.token
	cm.mu.Unlock()

	fire()

	t.OnMessage(cm.handleRawMessage)
	t.OnClosed(cm.handleClosed)

	if err := t.Connect(url); err != nil {
		cm.failAttempt(fmt.Errorf("connection: transport failed: %w", err))
		return
	}

	// Physical socket is open, authenticate immediately. The timeout
	// timer is armed at open time.
	cm.mu.Lock()
	fire = cm.transitionLocked(ConnState_Authenticating)
	authTimeout := cm.authTimeout
	cm.mu.Unlock()

	fire()

	cm.authTimer.Cancel()
	_ = cm.authTimer.NewTask(authTimeout, func(isCancelled bool) {
		if isCancelled {
			return
		}

		cm.handleAuthTimeout()
	})

	msg, _ := NewMessage(MessageType_Auth, AuthPayload{Token: token})
	data, _ := json.Marshal(msg)
	if err := t.Send(data); err != nil {
		t.Detach()
		_ = t.Close()
		cm.failAttempt(fmt.Errorf("connection: failed to send auth: %w", err))
	}
}

func (cm *connectionManager) handleRawMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		cm.logger.Warn("malformed message", zap.Error(err))
		return
	}

	switch msg.Type {
	case MessageType_ConnectionState:
		if !cm.handleAuthenticated() {
			// Stale auth success from an attempt that already failed;
			// forwarding it would leak a dead session to collaborators.
			return
		}
	case MessageType_Error:
		if cm.State() == ConnState_Authenticating {
			var payload ErrorPayload
			_ = msg.UnmarshalPayload(&payload)
			cm.handleAuthError(payload)
			return
		}
	}

	cm.mu.Lock()
	onMessage := cm.onMessage
	cm.mu.Unlock()

	onMessage(&msg)
}

// handleAuthenticated reports whether the session is live, so the
// caller knows whether to forward the state message onward.
func (cm *connectionManager) handleAuthenticated() bool {
	cm.mu.Lock()
	if cm.state == ConnState_Connected {
		// Server re-sent connection state on an established session
		cm.mu.Unlock()
		return true
	}
	if cm.state != ConnState_Authenticating {
		// The auth timer already failed this attempt
		cm.mu.Unlock()
		return false
	}

	cm.authTimer.Cancel()
	cm.attempts = 0
	fire := cm.transitionLocked(ConnState_Connected)
	waiters := cm.waiters
	cm.waiters = nil
	cm.mu.Unlock()

	fire()
	cm.schedulePing()

	for _, ch := range waiters {
		ch <- nil
	}

	return true
}

func (cm *connectionManager) handleAuthError(payload ErrorPayload) {
	cm.mu.Lock()
	if cm.state != ConnState_Authenticating {
		cm.mu.Unlock()
		return
	}
	t := cm.transport
	cm.mu.Unlock()

	if t != nil {
		t.Detach()
		_ = t.Close()
	}

	message := payload.Message
	if message == "" {
		message = "authentication rejected by server"
	}

	cm.failAttempt(fmt.Errorf("%w: %s", ErrConnectionAuthFailed, message))
}

func (cm *connectionManager) handleAuthTimeout() {
	cm.mu.Lock()
	if cm.state != ConnState_Authenticating {
		cm.mu.Unlock()
		return
	}
	t := cm.transport
	cm.mu.Unlock()

	if t != nil {
		t.Detach()
		_ = t.Close()
	}

	cm.failAttempt(ErrConnectionAuthTimeout)
}

// failAttempt resolves the current connect attempt as failed. Inside an
// automatic reconnect cycle the next attempt is scheduled; the initial
// connect is never retried implicitly.
func (cm *connectionManager) failAttempt(err error) {
	cm.mu.Lock()
	cm.authTimer.Cancel()
	cm.pingTimer.Cancel()
	cm.transport = nil
	inReconnectCycle := cm.attempts > 0
	token := cm.token
	fire := cm.transitionLocked(ConnState_Disconnected)
	waiters := cm.waiters
	cm.waiters = nil
	cm.mu.Unlock()

	fire()

	cm.logger.Warn("connect attempt failed", zap.Error(err))

	for _, ch := range waiters {
		ch <- err
	}

	if token != "" && inReconnectCycle {
		cm.scheduleReconnect()
	}
}

func (cm *connectionManager) handleClosed(err error) {
	cm.mu.Lock()
	prior := cm.state
	if prior == ConnState_Disconnected {
		cm.mu.Unlock()
		return
	}

	cm.authTimer.Cancel()
	cm.pingTimer.Cancel()
	cm.transport = nil
	token := cm.token
	inReconnectCycle := cm.attempts > 0
	fire := cm.transitionLocked(ConnState_Disconnected)
	waiters := cm.waiters
	cm.waiters = nil
	cm.mu.Unlock()

	fire()

	if err == nil {
		err = ErrTransportClosed
	}
	cm.logger.Info("socket closed",
		zap.String("prior_state", string(prior)),
		zap.Error(err),
	)

	for _, ch := range waiters {
		ch <- fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}

	if token != "" && (prior == ConnState_Connected || inReconnectCycle) {
		cm.scheduleReconnect()
	}
}

func (cm *connectionManager) schedulePing() {
	cm.mu.Lock()
	interval := cm.keepAlive
	cm.mu.Unlock()

	cm.pingTimer.Cancel()
	_ = cm.pingTimer.NewTask(interval, func(isCancelled bool) {
		if isCancelled {
			return
		}

		cm.mu.Lock()
		if cm.state != ConnState_Connected {
			cm.mu.Unlock()
			return
		}
		t := cm.transport
		cm.mu.Unlock()

		if t != nil {
			msg, _ := NewMessage(MessageType_Ping, struct{}{})
			data, _ := json.Marshal(msg)

			// Drops are expected while the link degrades; the close
			// handler takes over from there.
			_ = t.Send(data)
		}

		cm.schedulePing()
	})
}

func (cm *connectionManager) scheduleReconnect() {
	cm.mu.Lock()
	if cm.token == "" {
		cm.mu.Unlock()
		return
	}

	if cm.attempts >= cm.maxAttempts {
		alreadyNotified := cm.lostNotified
		cm.lostNotified = true
		onConnectionLost := cm.onConnectionLost
		cm.mu.Unlock()

		if !alreadyNotified {
			cm.logger.Error("connection lost, reconnect attempts exhausted")
			onConnectionLost(ErrConnectionLost)
		}
		return
	}

	cm.attempts++
	attempt := cm.attempts
	delay := reconnectDelay(attempt, cm.reconnectBase, cm.reconnectMax)
	cm.mu.Unlock()

	cm.logger.Info("scheduling reconnect",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)

	cm.reconnectTimer.Cancel()
	_ = cm.reconnectTimer.NewTask(delay, func(isCancelled bool) {
		if isCancelled {
			return
		}

		cm.mu.Lock()
		ok := cm.state == ConnState_Disconnected && cm.token != ""
		cm.mu.Unlock()

		if ok {
			cm.dial()
		}
	})
}

// reconnectDelay returns min(base * 2^(attempt-1), max).
func reconnectDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Disconnect tears the connection down for good: the attempt counter is
// pushed to its maximum so no scheduled reconnection can fire, the
// transport callbacks are detached before closing, and the held token
// is cleared.
func (cm *connectionManager) Disconnect() error {
	cm.mu.Lock()
	cm.attempts = cm.maxAttempts
	cm.token = ""
	cm.authTimer.Cancel()
	cm.pingTimer.Cancel()
	cm.reconnectTimer.Cancel()
	t := cm.transport
	cm.transport = nil
	fire := cm.transitionLocked(ConnState_Disconnected)
	waiters := cm.waiters
	cm.waiters = nil
	cm.mu.Unlock()

	if t != nil {
		t.Detach()
		_ = t.Close()
	}

	fire()

	for _, ch := range waiters {
		ch <- ErrConnectionClosed
	}

	return nil
}
