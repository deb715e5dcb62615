package pokerclient

import (
	"sync"

	"go.uber.org/zap"
)

// Client is the top-level session object tying together the connection
// manager, event router, table store and turn controller. It is meant
// to be constructed by the application context at login and torn down
// at logout, not held in a package-level singleton.
type Client interface {
	// Connection lifecycle
	Connect(token string) error
	Disconnect() error
	ConnectionState() ConnState

	// Table subscription
	SubscribeTable(tableID string, mode SubscribeMode) error
	UnsubscribeTable(tableID string) error
	LeaveTable(tableID string) error

	// Game actions
	SubmitAction(actionType ActionType, amount int64) error
	BeginFoldDecision(tableID string, opts ...FoldDecisionOpt) (FoldDecision, error)

	// Getters
	PlayerID() string
	GetTableView(tableID string) (*TableView, bool)
	GetRouter() EventRouter
	GetStore() TableStore
	GetTurnController() TurnController
}

type client struct {
	mu            sync.Mutex
	options       *ClientOptions
	callbacks     *ClientCallbacks
	cm            ConnectionManager
	router        EventRouter
	store         TableStore
	turn          TurnController
	playerID      string
	hadSession    bool
	subModes      map[string]SubscribeMode
	foldDecisions map[string]FoldDecision
	logger        *zap.Logger
}

func NewClient(options *ClientOptions, callbacks *ClientCallbacks) Client {
	var clientOptions *ClientOptions
	if options != nil {
		clientOptions = options
	} else {
		clientOptions = NewClientOptions()
	}

	var clientCallbacks *ClientCallbacks
	if callbacks != nil {
		clientCallbacks = callbacks
	} else {
		clientCallbacks = NewClientCallbacks()
	}

	logger := clientOptions.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &client{
		options:       clientOptions,
		callbacks:     clientCallbacks,
		subModes:      make(map[string]SubscribeMode),
		foldDecisions: make(map[string]FoldDecision),
		logger:        logger,
	}

	c.cm = NewConnectionManager(clientOptions.ServerURL,
		WithTransportFactory(clientOptions.TransportFactory),
		WithAuthTimeout(clientOptions.AuthTimeout),
		WithKeepAliveInterval(clientOptions.KeepAliveInterval),
		WithConnectionLogger(logger),
	)
	c.router = NewEventRouter(logger)
	c.store = NewTableStore(logger)
	c.turn = NewTurnController(c.router, c.store, logger)

	c.wire()

	return c
}

// wire binds every component to the dispatch path. Apart from these
// contracts no component reaches into another's internals.
func (c *client) wire() {
	c.router.SetReadyChecker(func() bool {
		return c.cm.State() == ConnState_Connected
	})

	c.cm.OnMessage(func(msg *Message) {
		c.router.Emit(msg)
	})
	c.cm.OnStateChanged(c.handleConnStateChanged)
	c.cm.OnConnectionLost(func(err error) {
		c.callbacks.OnConnectionLost(err)
	})

	c.router.On(MessageType_ConnectionState, c.handleConnectionState)
	c.router.On(MessageType_TableSnapshot, c.handleTableSnapshot)
	c.router.On(MessageType_TableStateUpdate, c.handleTableStateUpdate)
	c.router.On(MessageType_TurnPrompt, c.handleTurnPrompt)
	c.router.On(MessageType_ActionResult, c.handleActionResult)
	c.router.On(MessageType_ShowdownResult, c.handleShowdownResult)
	c.router.On(MessageType_ChatBroadcast, c.handleChatBroadcast)
	c.router.On(MessageType_Error, c.handleServerError)
	c.router.OnSendFailed(func(failure SendFailure) {
		c.callbacks.OnSendFailed(failure)
	})

	c.store.OnViewUpdated(func(tableID string, view *TableView) {
		c.callbacks.OnTableViewUpdated(tableID, view)
	})
	c.store.OnDeltaDiscarded(func(delta TableDelta) {
		c.callbacks.OnDeltaDiscarded(delta)
	})
	c.store.OnResynced(func(tableIDs []string) {
		c.callbacks.OnResynced(tableIDs)
	})

	c.turn.OnActionRequired(func(prompt TurnPrompt) {
		c.callbacks.OnActionRequired(prompt)
	})
	c.turn.OnTurnTimeout(func(prompt TurnPrompt) {
		c.callbacks.OnTurnTimeout(prompt)
	})
	c.turn.OnActionResolved(func(result ActionResult) {
		c.callbacks.OnActionResult(result)
	})
}

func (c *client) handleConnStateChanged(oldState, newState ConnState) {
	switch newState {
	case ConnState_Connected:
		c.router.AttachTransport(c.cm.Transport())
		c.resubscribe()
	case ConnState_Disconnected:
		c.turn.Reset()
		c.teardownFoldDecisions()
	}

	c.callbacks.OnConnectionStateChanged(oldState, newState)
}

// resubscribe re-requests every subscribed table after a reconnection
// and arms the resync barrier; deltas are rejected until each table
// has delivered a fresh snapshot.
func (c *client) resubscribe() {
	c.mu.Lock()
	hadSession := c.hadSession
	c.hadSession = true
	c.mu.Unlock()

	if !hadSession {
		return
	}

	tableIDs := c.store.SubscribedTables()
	if len(tableIDs) == 0 {
		return
	}

	c.store.BeginResync()
	for _, tableID := range tableIDs {
		if err := c.router.Send(MessageType_SubscribeTable, SubscribeTablePayload{
			TableID: tableID,
			Mode:    c.subscribeMode(tableID),
		}); err != nil {
			c.logger.Warn("failed to resubscribe table",
				zap.String("table_id", tableID),
				zap.Error(err),
			)
		}
	}
}

func (c *client) handleConnectionState(msg *Message) {
	var payload ConnectionStatePayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		c.logger.Warn("malformed connection state payload", zap.Error(err))
		return
	}

	if payload.PlayerID == "" {
		return
	}

	c.mu.Lock()
	c.playerID = payload.PlayerID
	c.mu.Unlock()

	c.turn.SetLocalPlayer(payload.PlayerID)
}

func (c *client) handleTableSnapshot(msg *Message) {
	var snapshot TableSnapshot
	if err := msg.UnmarshalPayload(&snapshot); err != nil {
		c.logger.Warn("malformed table snapshot", zap.Error(err))
		return
	}

	if err := c.store.ApplySnapshot(snapshot); err != nil {
		c.logger.Debug("snapshot ignored",
			zap.String("table_id", snapshot.TableID),
			zap.Error(err),
		)
	}
}

func (c *client) handleTableStateUpdate(msg *Message) {
	var delta TableDelta
	if err := msg.UnmarshalPayload(&delta); err != nil {
		c.logger.Warn("malformed table delta", zap.Error(err))
		return
	}

	// A delta ahead of its snapshot is an expected reconnection race;
	// the store discards it and reports through OnDeltaDiscarded.
	_ = c.store.ApplyDelta(delta)
}

func (c *client) handleTurnPrompt(msg *Message) {
	var prompt TurnPrompt
	if err := msg.UnmarshalPayload(&prompt); err != nil {
		c.logger.Warn("malformed turn prompt", zap.Error(err))
		return
	}

	c.turn.HandleTurnPrompt(prompt)
}

func (c *client) handleActionResult(msg *Message) {
	var result ActionResult
	if err := msg.UnmarshalPayload(&result); err != nil {
		c.logger.Warn("malformed action result", zap.Error(err))
		return
	}

	c.turn.HandleActionResult(result)
}

func (c *client) handleShowdownResult(msg *Message) {
	c.callbacks.OnShowdownResult(msg.Payload)
}

func (c *client) handleChatBroadcast(msg *Message) {
	c.callbacks.OnChatBroadcast(msg.Payload)
}

func (c *client) handleServerError(msg *Message) {
	var payload ErrorPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		c.logger.Warn("malformed error payload", zap.Error(err))
		return
	}

	// Delivered verbatim; mapping codes to user-facing text is the
	// presentation layer's concern.
	c.callbacks.OnServerError(payload.Code, payload.Message)
}

func (c *client) Connect(token string) error {
	return c.cm.Connect(token)
}

func (c *client) Disconnect() error {
	err := c.cm.Disconnect()

	c.turn.Reset()
	c.store.Reset()
	c.teardownFoldDecisions()

	c.mu.Lock()
	c.hadSession = false
	c.playerID = ""
	c.subModes = make(map[string]SubscribeMode)
	c.mu.Unlock()

	return err
}

func (c *client) ConnectionState() ConnState {
	return c.cm.State()
}

func (c *client) subscribeMode(tableID string) SubscribeMode {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mode, ok := c.subModes[tableID]; ok {
		return mode
	}
	return SubscribeMode_Player
}

func (c *client) SubscribeTable(tableID string, mode SubscribeMode) error {
	if err := c.router.Send(MessageType_SubscribeTable, SubscribeTablePayload{
		TableID: tableID,
		Mode:    mode,
	}); err != nil {
		return err
	}

	c.mu.Lock()
	c.subModes[tableID] = mode
	c.mu.Unlock()

	c.store.Subscribe(tableID)
	return nil
}

func (c *client) UnsubscribeTable(tableID string) error {
	c.mu.Lock()
	delete(c.subModes, tableID)
	c.mu.Unlock()

	c.store.Unsubscribe(tableID)

	return c.router.Send(MessageType_UnsubscribeTable, UnsubscribeTablePayload{
		TableID: tableID,
	})
}

func (c *client) LeaveTable(tableID string) error {
	c.mu.Lock()
	delete(c.subModes, tableID)
	c.mu.Unlock()

	c.store.Unsubscribe(tableID)

	return c.router.Send(MessageType_LeaveTable, LeaveTablePayload{
		TableID: tableID,
	})
}

func (c *client) SubmitAction(actionType ActionType, amount int64) error {
	return c.turn.SubmitAction(actionType, amount)
}

// BeginFoldDecision starts the reveal-or-conceal countdown for a fold
// of the local hand. The resolved option is sent to the server exactly
// once, when the decision completes.
func (c *client) BeginFoldDecision(tableID string, opts ...FoldDecisionOpt) (FoldDecision, error) {
	decisionOpts := []FoldDecisionOpt{
		WithFoldCountdown(c.options.FoldCountdown),
		WithRevealHold(c.options.RevealHold),
		WithFoldLogger(c.logger),
	}
	decisionOpts = append(decisionOpts, opts...)

	fd := NewFoldDecision(decisionOpts...)
	fd.OnCompleted(func(option FoldOption) {
		c.mu.Lock()
		delete(c.foldDecisions, tableID)
		c.mu.Unlock()

		if err := c.router.Send(MessageType_FoldReveal, FoldRevealPayload{
			TableID: tableID,
			Option:  option,
		}); err != nil {
			c.logger.Warn("failed to send fold reveal",
				zap.String("table_id", tableID),
				zap.Error(err),
			)
		}
	})

	c.mu.Lock()
	if existing, ok := c.foldDecisions[tableID]; ok {
		existing.Teardown()
	}
	c.foldDecisions[tableID] = fd
	c.mu.Unlock()

	if err := fd.Start(); err != nil {
		return nil, err
	}

	return fd, nil
}

func (c *client) teardownFoldDecisions() {
	c.mu.Lock()
	decisions := c.foldDecisions
	c.foldDecisions = make(map[string]FoldDecision)
	c.mu.Unlock()

	for _, fd := range decisions {
		fd.Teardown()
	}
}

func (c *client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

func (c *client) GetTableView(tableID string) (*TableView, bool) {
	return c.store.GetView(tableID)
}

func (c *client) GetRouter() EventRouter {
	return c.router
}

func (c *client) GetStore() TableStore {
	return c.store
}

func (c *client) GetTurnController() TurnController {
	return c.turn
}
