package pokerclient

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

type ClientCallbacks struct {
	OnConnectionStateChanged func(oldState, newState ConnState)
	OnConnectionLost         func(err error)
	OnTableViewUpdated       func(tableID string, view *TableView)
	OnDeltaDiscarded         func(delta TableDelta)
	OnResynced               func(tableIDs []string)
	OnActionRequired         func(prompt TurnPrompt)
	OnActionResult           func(result ActionResult)
	OnTurnTimeout            func(prompt TurnPrompt)
	OnShowdownResult         func(payload json.RawMessage)
	OnChatBroadcast          func(payload json.RawMessage)
	OnServerError            func(code, message string)
	OnSendFailed             func(failure SendFailure)
}

func NewClientCallbacks() *ClientCallbacks {
	return &ClientCallbacks{
		OnConnectionStateChanged: func(ConnState, ConnState) {},
		OnConnectionLost:         func(error) {},
		OnTableViewUpdated:       func(string, *TableView) {},
		OnDeltaDiscarded:         func(TableDelta) {},
		OnResynced:               func([]string) {},
		OnActionRequired:         func(TurnPrompt) {},
		OnActionResult:           func(ActionResult) {},
		OnTurnTimeout:            func(TurnPrompt) {},
		OnShowdownResult:         func(json.RawMessage) {},
		OnChatBroadcast:          func(json.RawMessage) {},
		OnServerError:            func(string, string) {},
		OnSendFailed:             func(SendFailure) {},
	}
}

type ClientOptions struct {
	ServerURL         string
	AuthTimeout       time.Duration
	KeepAliveInterval time.Duration
	FoldCountdown     time.Duration
	RevealHold        time.Duration
	Logger            *zap.Logger
	TransportFactory  func() Transport
}

func NewClientOptions() *ClientOptions {
	return &ClientOptions{
		AuthTimeout:       DefaultAuthTimeout,
		KeepAliveInterval: DefaultKeepAliveInterval,
		FoldCountdown:     DefaultFoldCountdown,
		RevealHold:        DefaultRevealHold,
		Logger:            zap.NewNop(),
		TransportFactory:  NewWebSocketTransport,
	}
}
