package pokerclient

import (
	"encoding/json"
	"errors"
	"sync"
)

// fakeTransport is an in-memory Transport for tests. Messages written
// through Send are recorded; inbound traffic is injected with deliver.
type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	failConnect  bool
	failSend     bool
	connectCount int
	sent         [][]byte
	onSend       func(data []byte)
	onMessage    func(data []byte)
	onClosed     func(err error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		onMessage: func([]byte) {},
		onClosed:  func(error) {},
	}
}

func (ft *fakeTransport) Connect(url string) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	ft.connectCount++
	if ft.failConnect {
		return errors.New("dial refused")
	}

	ft.connected = true
	return nil
}

func (ft *fakeTransport) Send(data []byte) error {
	ft.mu.Lock()
	if !ft.connected {
		ft.mu.Unlock()
		return ErrTransportNotConnected
	}
	if ft.failSend {
		ft.mu.Unlock()
		return errors.New("write failed")
	}

	ft.sent = append(ft.sent, data)
	hook := ft.onSend
	ft.mu.Unlock()

	if hook != nil {
		hook(data)
	}
	return nil
}

func (ft *fakeTransport) Close() error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.connected = false
	return nil
}

func (ft *fakeTransport) IsOpen() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.connected
}

func (ft *fakeTransport) OnMessage(fn func(data []byte)) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.onMessage = fn
}

func (ft *fakeTransport) OnClosed(fn func(err error)) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.onClosed = fn
}

func (ft *fakeTransport) Detach() {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.onMessage = func([]byte) {}
	ft.onClosed = func(error) {}
}

// deliver injects an inbound message as if the server had sent it.
func (ft *fakeTransport) deliver(msgType MessageType, payload interface{}) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}

	ft.mu.Lock()
	onMessage := ft.onMessage
	ft.mu.Unlock()

	onMessage(data)
}

// dropConnection simulates the socket dying underneath the client.
func (ft *fakeTransport) dropConnection(err error) {
	ft.mu.Lock()
	ft.connected = false
	onClosed := ft.onClosed
	ft.mu.Unlock()

	onClosed(err)
}

func (ft *fakeTransport) sentMessages() []*Message {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	msgs := make([]*Message, 0, len(ft.sent))
	for _, data := range ft.sent {
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		msgs = append(msgs, &msg)
	}
	return msgs
}

func (ft *fakeTransport) sentByType(msgType MessageType) []*Message {
	matched := make([]*Message, 0)
	for _, msg := range ft.sentMessages() {
		if msg.Type == msgType {
			matched = append(matched, msg)
		}
	}
	return matched
}

func (ft *fakeTransport) countConnects() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.connectCount
}

// respondToAuth wires an auto-responder that answers any AUTH frame
// with a CONNECTION_STATE message, completing the handshake.
func (ft *fakeTransport) respondToAuth(playerID string) {
	ft.mu.Lock()
	ft.onSend = func(data []byte) {
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		if msg.Type != MessageType_Auth {
			return
		}

		ft.deliver(MessageType_ConnectionState, ConnectionStatePayload{
			PlayerID:   playerID,
			SessionID:  "session_1",
			ServerTime: 0,
		})
	}
	ft.mu.Unlock()
}
