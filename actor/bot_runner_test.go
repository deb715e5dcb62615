package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/weedbox/pokerclient"
)

type submittedAction struct {
	Action pokerclient.ActionType
	Amount int64
}

type fakeClient struct {
	mu        sync.Mutex
	submitted []submittedAction
}

func (fc *fakeClient) Connect(token string) error { return nil }
func (fc *fakeClient) Disconnect() error          { return nil }
func (fc *fakeClient) ConnectionState() pokerclient.ConnState {
	return pokerclient.ConnState_Connected
}
func (fc *fakeClient) SubscribeTable(tableID string, mode pokerclient.SubscribeMode) error {
	return nil
}
func (fc *fakeClient) UnsubscribeTable(tableID string) error { return nil }
func (fc *fakeClient) LeaveTable(tableID string) error       { return nil }
func (fc *fakeClient) SubmitAction(actionType pokerclient.ActionType, amount int64) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.submitted = append(fc.submitted, submittedAction{Action: actionType, Amount: amount})
	return nil
}
func (fc *fakeClient) BeginFoldDecision(tableID string, opts ...pokerclient.FoldDecisionOpt) (pokerclient.FoldDecision, error) {
	return nil, nil
}
func (fc *fakeClient) PlayerID() string { return "bot" }
func (fc *fakeClient) GetTableView(tableID string) (*pokerclient.TableView, bool) {
	return nil, false
}
func (fc *fakeClient) GetRouter() pokerclient.EventRouter { return nil }
func (fc *fakeClient) GetStore() pokerclient.TableStore   { return nil }
func (fc *fakeClient) GetTurnController() pokerclient.TurnController {
	return nil
}

func (fc *fakeClient) actions() []submittedAction {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	out := make([]submittedAction, len(fc.submitted))
	copy(out, fc.submitted)
	return out
}

func TestBotRunner_SubmitsAllowedAction(t *testing.T) {
	fc := &fakeClient{}
	bot := NewBotRunner(fc)

	prompt := pokerclient.TurnPrompt{
		TableID:  "table_1",
		Position: 2,
		AllowedActions: []pokerclient.AllowedAction{
			{Type: pokerclient.ActionType_Fold},
			{Type: pokerclient.ActionType_Call, Amount: 100},
			{Type: pokerclient.ActionType_Raise, MinAmount: 200, MaxAmount: 3000},
		},
		Deadline: time.Now().Add(10 * time.Second).UnixMilli(),
	}

	assert.Nil(t, bot.HandleTurnPrompt(prompt))

	actions := fc.actions()
	assert.Len(t, actions, 1)

	submitted := actions[0]
	switch submitted.Action {
	case pokerclient.ActionType_Fold:
		assert.Equal(t, int64(0), submitted.Amount)
	case pokerclient.ActionType_Call:
		assert.Equal(t, int64(100), submitted.Amount)
	case pokerclient.ActionType_Raise:
		assert.GreaterOrEqual(t, submitted.Amount, int64(200))
		assert.Less(t, submitted.Amount, int64(3000))
	default:
		t.Fatalf("unexpected action %s", submitted.Action)
	}
}

func TestBotRunner_SingleAllowedAction(t *testing.T) {
	fc := &fakeClient{}
	bot := NewBotRunner(fc)

	prompt := pokerclient.TurnPrompt{
		TableID:  "table_1",
		Position: 0,
		AllowedActions: []pokerclient.AllowedAction{
			{Type: pokerclient.ActionType_Check},
		},
		Deadline: time.Now().Add(10 * time.Second).UnixMilli(),
	}

	assert.Nil(t, bot.HandleTurnPrompt(prompt))

	actions := fc.actions()
	assert.Len(t, actions, 1)
	assert.Equal(t, pokerclient.ActionType_Check, actions[0].Action)
}

func TestBotRunner_EmptyPromptIgnored(t *testing.T) {
	fc := &fakeClient{}
	bot := NewBotRunner(fc)

	assert.Nil(t, bot.HandleTurnPrompt(pokerclient.TurnPrompt{TableID: "table_1"}))
	assert.Len(t, fc.actions(), 0)
}

func TestBotRunner_HumanizedDelay(t *testing.T) {
	fc := &fakeClient{}
	bot := NewBotRunner(fc)
	bot.Humanized(true)

	var wg sync.WaitGroup
	wg.Add(1)
	bot.OnActionSubmitted(func(tableID string, action pokerclient.ActionType, amount int64) {
		assert.Equal(t, "table_1", tableID)
		wg.Done()
	})

	prompt := pokerclient.TurnPrompt{
		TableID:  "table_1",
		Position: 1,
		AllowedActions: []pokerclient.AllowedAction{
			{Type: pokerclient.ActionType_Check},
		},
		Deadline: time.Now().Add(200 * time.Millisecond).UnixMilli(),
	}

	assert.Nil(t, bot.HandleTurnPrompt(prompt))

	wg.Wait()

	actions := fc.actions()
	assert.Len(t, actions, 1)
	assert.Equal(t, pokerclient.ActionType_Check, actions[0].Action)
}
