package pokerclient

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Transport owns one physical connection and the framing of raw
// messages. It knows nothing about message semantics.
type Transport interface {
	Connect(url string) error
	Send(data []byte) error
	Close() error
	IsOpen() bool
	OnMessage(fn func(data []byte))
	OnClosed(fn func(err error))

	// Detach replaces both callbacks with no-ops so a deliberate Close
	// cannot re-enter the owner through the closed handler.
	Detach()
}

type wsTransport struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	opened    bool
	onMessage func([]byte)
	onClosed  func(error)
}

func NewWebSocketTransport() Transport {
	return &wsTransport{
		onMessage: func([]byte) {},
		onClosed:  func(error) {},
	}
}

func (t *wsTransport) Connect(url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.opened = true
	t.mu.Unlock()

	go t.readLoop(conn)

	return nil
}

func (t *wsTransport) readLoop(conn *websocket.Conn) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			t.opened = false
			onClosed := t.onClosed
			t.mu.Unlock()

			onClosed(err)
			return
		}

		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		t.mu.Lock()
		onMessage := t.onMessage
		t.mu.Unlock()

		onMessage(data)
	}
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.opened || t.conn == nil {
		return ErrTransportNotConnected
	}

	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.opened = false
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	return conn.Close()
}

func (t *wsTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened
}

func (t *wsTransport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = fn
}

func (t *wsTransport) OnClosed(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClosed = fn
}

func (t *wsTransport) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = func([]byte) {}
	t.onClosed = func(error) {}
}
