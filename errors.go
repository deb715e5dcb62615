package pokerclient

import "errors"

var (
	// Transport
	ErrTransportNotConnected = errors.New("transport: not connected")
	ErrTransportClosed       = errors.New("transport: connection closed")

	// Connection
	ErrConnectionAuthTimeout   = errors.New("connection: authentication timed out")
	ErrConnectionAuthFailed    = errors.New("connection: authentication failed")
	ErrConnectionClosed        = errors.New("connection: closed before authentication completed")
	ErrConnectionLost          = errors.New("connection: lost after exhausting reconnect attempts")
	ErrConnectionTokenRequired = errors.New("connection: auth token is required")

	// Router
	ErrRouterNotReady = errors.New("router: transport is not ready for sending")

	// Table store
	ErrTableNotSubscribed   = errors.New("table_store: table is not subscribed")
	ErrTableSnapshotMissing = errors.New("table_store: delta discarded, no snapshot for table yet")

	// Turn
	ErrTurnNoActivePrompt   = errors.New("turn: no action is awaited for the local seat")
	ErrTurnActionNotAllowed = errors.New("turn: action is not in the allowed set")
	ErrTurnAlreadySubmitted = errors.New("turn: action already submitted for this prompt")
	ErrTurnAmountOutOfRange = errors.New("turn: action amount is out of range")

	// Fold decision
	ErrFoldAlreadyResolved = errors.New("fold: decision already resolved")
	ErrFoldInvalidOption   = errors.New("fold: invalid reveal option")
	ErrFoldNotStarted      = errors.New("fold: countdown has not been started")
)
