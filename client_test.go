package pokerclient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clientFixture struct {
	client    Client
	factory   *transportFactory
	callbacks *ClientCallbacks
}

func newClientFixture(t *testing.T) *clientFixture {
	factory := &transportFactory{
		prepare: func(ft *fakeTransport, idx int) {
			ft.respondToAuth("alice")
		},
	}

	options := NewClientOptions()
	options.ServerURL = "ws://localhost/ws"
	options.TransportFactory = factory.new

	callbacks := NewClientCallbacks()

	c := NewClient(options, callbacks)

	// Shrink the backoff so reconnection paths run within test time
	cm := c.(*client).cm.(*connectionManager)
	cm.reconnectBase = 10 * time.Millisecond
	cm.reconnectMax = 50 * time.Millisecond

	return &clientFixture{
		client:    c,
		factory:   factory,
		callbacks: callbacks,
	}
}

func TestClient_ConnectCapturesPlayerID(t *testing.T) {
	fx := newClientFixture(t)

	assert.Nil(t, fx.client.Connect("token_abc"))
	assert.Equal(t, ConnState_Connected, fx.client.ConnectionState())
	assert.Equal(t, "alice", fx.client.PlayerID())
}

func TestClient_SubscribeAndSnapshotFlow(t *testing.T) {
	fx := newClientFixture(t)

	var mu sync.Mutex
	updates := 0
	fx.callbacks.OnTableViewUpdated = func(tableID string, view *TableView) {
		mu.Lock()
		defer mu.Unlock()
		updates++
	}

	assert.Nil(t, fx.client.Connect("token_abc"))
	assert.Nil(t, fx.client.SubscribeTable("table_1", SubscribeMode_Player))

	sent := fx.factory.last().sentByType(MessageType_SubscribeTable)
	assert.Len(t, sent, 1)

	fx.factory.last().deliver(MessageType_TableSnapshot, sampleSnapshot("table_1"))

	view, ok := fx.client.GetTableView("table_1")
	assert.True(t, ok)
	assert.Equal(t, int64(150), view.Pot)

	fx.factory.last().deliver(MessageType_TableStateUpdate, TableDelta{
		TableID: "table_1",
		Pot:     int64Ptr(400),
	})

	view, _ = fx.client.GetTableView("table_1")
	assert.Equal(t, int64(400), view.Pot)

	mu.Lock()
	assert.Equal(t, 2, updates)
	mu.Unlock()
}

func TestClient_TurnFlow(t *testing.T) {
	fx := newClientFixture(t)

	var prompted *TurnPrompt
	fx.callbacks.OnActionRequired = func(prompt TurnPrompt) {
		prompted = &prompt
	}

	var resolved *ActionResult
	fx.callbacks.OnActionResult = func(result ActionResult) {
		resolved = &result
	}

	assert.Nil(t, fx.client.Connect("token_abc"))
	assert.Nil(t, fx.client.SubscribeTable("table_1", SubscribeMode_Player))
	fx.factory.last().deliver(MessageType_TableSnapshot, sampleSnapshot("table_1"))

	fx.factory.last().deliver(MessageType_TurnPrompt, TurnPrompt{
		TableID:  "table_1",
		Position: 0,
		AllowedActions: []AllowedAction{
			{Type: ActionType_Fold},
			{Type: ActionType_Check},
		},
		Deadline: time.Now().Add(10 * time.Second).UnixMilli(),
	})

	assert.NotNil(t, prompted)
	assert.Equal(t, TurnState_AwaitingMyAction, fx.client.GetTurnController().State())

	assert.Nil(t, fx.client.SubmitAction(ActionType_Check, 0))

	actions := fx.factory.last().sentByType(MessageType_PlayerAction)
	assert.Len(t, actions, 1)

	var request ActionRequest
	assert.Nil(t, actions[0].UnmarshalPayload(&request))

	fx.factory.last().deliver(MessageType_ActionResult, ActionResult{
		RequestID: request.RequestID,
		TableID:   "table_1",
		Ok:        true,
	})

	assert.NotNil(t, resolved)
	assert.True(t, resolved.Ok)
	assert.Equal(t, TurnState_Idle, fx.client.GetTurnController().State())
}

func TestClient_FoldDecisionSendsReveal(t *testing.T) {
	fx := newClientFixture(t)

	assert.Nil(t, fx.client.Connect("token_abc"))

	fd, err := fx.client.BeginFoldDecision("table_1",
		WithRevealHold(50*time.Millisecond),
	)
	assert.Nil(t, err)

	assert.Nil(t, fd.Select(FoldOption_ShowAll))

	assert.Eventually(t, func() bool {
		return len(fx.factory.last().sentByType(MessageType_FoldReveal)) == 1
	}, time.Second, 10*time.Millisecond)

	sent := fx.factory.last().sentByType(MessageType_FoldReveal)

	var payload FoldRevealPayload
	assert.Nil(t, sent[0].UnmarshalPayload(&payload))
	assert.Equal(t, "table_1", payload.TableID)
	assert.Equal(t, FoldOption_ShowAll, payload.Option)
}

func TestClient_ServerErrorForwarded(t *testing.T) {
	fx := newClientFixture(t)

	var code, message string
	fx.callbacks.OnServerError = func(c, m string) {
		code = c
		message = m
	}

	assert.Nil(t, fx.client.Connect("token_abc"))

	fx.factory.last().deliver(MessageType_Error, ErrorPayload{
		Code:    ErrorCode_RoomFull,
		Message: "room is full",
	})

	assert.Equal(t, ErrorCode_RoomFull, code)
	assert.Equal(t, "room is full", message)
}

func TestClient_ReconnectResubscribesAndResyncs(t *testing.T) {
	fx := newClientFixture(t)

	var mu sync.Mutex
	var resynced []string
	fx.callbacks.OnResynced = func(tableIDs []string) {
		mu.Lock()
		defer mu.Unlock()
		resynced = tableIDs
	}

	assert.Nil(t, fx.client.Connect("token_abc"))
	assert.Nil(t, fx.client.SubscribeTable("table_1", SubscribeMode_Player))
	fx.factory.last().deliver(MessageType_TableSnapshot, sampleSnapshot("table_1"))

	fx.factory.last().dropConnection(ErrTransportClosed)

	assert.Eventually(t, func() bool {
		return fx.client.ConnectionState() == ConnState_Connected && fx.factory.count() == 2
	}, time.Second, 10*time.Millisecond)

	// The subscription was replayed on the new connection
	assert.Eventually(t, func() bool {
		return len(fx.factory.last().sentByType(MessageType_SubscribeTable)) == 1
	}, time.Second, 10*time.Millisecond)

	// Deltas stay rejected until the fresh snapshot lands
	assert.ErrorIs(t, fx.client.GetStore().ApplyDelta(TableDelta{
		TableID: "table_1",
		Pot:     int64Ptr(1),
	}), ErrTableSnapshotMissing)

	fx.factory.last().deliver(MessageType_TableSnapshot, sampleSnapshot("table_1"))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(resynced) == 1 && resynced[0] == "table_1"
	}, time.Second, 10*time.Millisecond)
}

func TestClient_DisconnectClearsSession(t *testing.T) {
	fx := newClientFixture(t)

	assert.Nil(t, fx.client.Connect("token_abc"))
	assert.Nil(t, fx.client.SubscribeTable("table_1", SubscribeMode_Player))
	fx.factory.last().deliver(MessageType_TableSnapshot, sampleSnapshot("table_1"))

	assert.Nil(t, fx.client.Disconnect())

	assert.Equal(t, ConnState_Disconnected, fx.client.ConnectionState())
	assert.Equal(t, "", fx.client.PlayerID())

	_, ok := fx.client.GetTableView("table_1")
	assert.False(t, ok)
	assert.Equal(t, TurnState_Idle, fx.client.GetTurnController().State())
}
