package pokerclient

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/weedbox/timebank"
	"go.uber.org/zap"
)

type TurnState string

const (
	TurnState_Idle             TurnState = "idle"
	TurnState_AwaitingMyAction TurnState = "awaiting_my_action"
	TurnState_ActionSubmitted  TurnState = "action_submitted"
)

// PendingAction is the optimistic record of the last action request
// sent. It prevents duplicate submission; it never assumes success.
type PendingAction struct {
	RequestID   string     `json:"request_id"`
	TableID     string     `json:"table_id"`
	Action      ActionType `json:"action"`
	Amount      int64      `json:"amount"`
	SubmittedAt int64      `json:"submitted_at"` // Milliseconds
}

// TurnController tracks whose turn it is for the local player and
// enforces which actions are legal. It only ever presents actions the
// server supplied; it never invents one, and it never acts on the
// player's behalf when the deadline passes.
type TurnController interface {
	// Events
	OnActionRequired(fn func(prompt TurnPrompt))
	OnTurnTimeout(fn func(prompt TurnPrompt))
	OnActionResolved(fn func(result ActionResult))

	// Inbound events
	HandleTurnPrompt(prompt TurnPrompt)
	HandleActionResult(result ActionResult)

	// Actions
	SetLocalPlayer(playerID string)
	SubmitAction(actionType ActionType, amount int64) error
	Reset()

	// Getters
	State() TurnState
	CurrentPrompt() *TurnPrompt
	PendingAction() *PendingAction
}

type turnController struct {
	mu               sync.Mutex
	router           EventRouter
	store            TableStore
	localPlayerID    string
	state            TurnState
	prompt           *TurnPrompt
	pending          *PendingAction
	deadlineTimer    *timebank.TimeBank
	onActionRequired func(TurnPrompt)
	onTurnTimeout    func(TurnPrompt)
	onActionResolved func(ActionResult)
	logger           *zap.Logger
}

func NewTurnController(router EventRouter, store TableStore, logger *zap.Logger) TurnController {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &turnController{
		router:           router,
		store:            store,
		state:            TurnState_Idle,
		deadlineTimer:    timebank.NewTimeBank(),
		onActionRequired: func(TurnPrompt) {},
		onTurnTimeout:    func(TurnPrompt) {},
		onActionResolved: func(ActionResult) {},
		logger:           logger,
	}
}

func (tc *turnController) OnActionRequired(fn func(TurnPrompt)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.onActionRequired = fn
}

func (tc *turnController) OnTurnTimeout(fn func(TurnPrompt)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.onTurnTimeout = fn
}

func (tc *turnController) OnActionResolved(fn func(ActionResult)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.onActionResolved = fn
}

func (tc *turnController) SetLocalPlayer(playerID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.localPlayerID = playerID
}

func (tc *turnController) State() TurnState {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.state
}

func (tc *turnController) CurrentPrompt() *TurnPrompt {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.prompt == nil {
		return nil
	}
	prompt := *tc.prompt
	return &prompt
}

func (tc *turnController) PendingAction() *PendingAction {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.pending == nil {
		return nil
	}
	pending := *tc.pending
	return &pending
}

func (tc *turnController) HandleTurnPrompt(prompt TurnPrompt) {
	localSeat := tc.store.SeatOf(prompt.TableID, tc.localPlayerID)

	tc.mu.Lock()
	tc.deadlineTimer.Cancel()

	if localSeat == UnsetValue || prompt.Position != localSeat {
		// Turn passed to another seat; any prompt held for the local
		// player is superseded.
		tc.prompt = nil
		tc.pending = nil
		tc.state = TurnState_Idle
		tc.mu.Unlock()
		return
	}

	normalized := tc.normalizeBounds(prompt)
	tc.prompt = &normalized
	tc.pending = nil
	tc.state = TurnState_AwaitingMyAction
	onActionRequired := tc.onActionRequired
	tc.mu.Unlock()

	tc.armDeadline(normalized)

	onActionRequired(normalized)
}

// normalizeBounds fills in the raise/bet bounds the server left unset:
// the minimum defaults to the table's minimum raise and the maximum to
// the local stack (all-in).
func (tc *turnController) normalizeBounds(prompt TurnPrompt) TurnPrompt {
	view, ok := tc.store.GetView(prompt.TableID)
	if !ok {
		return prompt
	}

	stackSize := int64(0)
	for _, seat := range view.Seats {
		if seat.Position == prompt.Position {
			stackSize = seat.StackSize
			break
		}
	}

	actions := make([]AllowedAction, len(prompt.AllowedActions))
	copy(actions, prompt.AllowedActions)
	for idx, action := range actions {
		if action.Type != ActionType_Bet && action.Type != ActionType_Raise {
			continue
		}
		if action.MinAmount == 0 {
			actions[idx].MinAmount = view.MinRaise
		}
		if action.MaxAmount == 0 {
			actions[idx].MaxAmount = stackSize
		}
	}
	prompt.AllowedActions = actions

	return prompt
}

func (tc *turnController) armDeadline(prompt TurnPrompt) {
	if prompt.Deadline <= 0 {
		return
	}

	deadline := time.UnixMilli(prompt.Deadline)
	err := tc.deadlineTimer.NewTaskWithDeadline(deadline, func(isCancelled bool) {
		if isCancelled {
			return
		}

		tc.handleDeadline(prompt)
	})
	if err != nil {
		tc.logger.Error("failed to arm turn deadline", zap.Error(err))
	}
}

func (tc *turnController) handleDeadline(prompt TurnPrompt) {
	tc.mu.Lock()
	if tc.state != TurnState_AwaitingMyAction || tc.prompt == nil || tc.prompt.Deadline != prompt.Deadline {
		tc.mu.Unlock()
		return
	}

	// The server decides what a missed deadline means; the controller
	// only reports it.
	tc.prompt = nil
	tc.state = TurnState_Idle
	onTurnTimeout := tc.onTurnTimeout
	tc.mu.Unlock()

	tc.logger.Info("turn deadline exceeded",
		zap.String("table_id", prompt.TableID),
		zap.Int("position", prompt.Position),
	)

	onTurnTimeout(prompt)
}

func (tc *turnController) SubmitAction(actionType ActionType, amount int64) error {
	tc.mu.Lock()

	if tc.state == TurnState_ActionSubmitted {
		tc.mu.Unlock()
		return ErrTurnAlreadySubmitted
	}
	if tc.state != TurnState_AwaitingMyAction || tc.prompt == nil {
		tc.mu.Unlock()
		return ErrTurnNoActivePrompt
	}

	prompt := *tc.prompt
	allowed, ok := prompt.HasAction(actionType)
	if !ok {
		tc.mu.Unlock()
		return ErrTurnActionNotAllowed
	}

	switch actionType {
	case ActionType_Call:
		// The call amount is fixed by the server
		amount = allowed.Amount
	case ActionType_Bet, ActionType_Raise:
		if amount < allowed.MinAmount || (allowed.MaxAmount > 0 && amount > allowed.MaxAmount) {
			tc.mu.Unlock()
			return ErrTurnAmountOutOfRange
		}
	default:
		amount = 0
	}

	request := ActionRequest{
		RequestID: uuid.New().String(),
		TableID:   prompt.TableID,
		Action:    actionType,
		Amount:    amount,
	}

	tc.pending = &PendingAction{
		RequestID:   request.RequestID,
		TableID:     request.TableID,
		Action:      request.Action,
		Amount:      request.Amount,
		SubmittedAt: time.Now().UnixMilli(),
	}
	tc.state = TurnState_ActionSubmitted
	tc.deadlineTimer.Cancel()
	tc.mu.Unlock()

	if err := tc.router.Send(MessageType_PlayerAction, request); err != nil {
		// Nothing went out, roll back so the caller may retry
		tc.mu.Lock()
		if tc.prompt != nil && tc.prompt.Deadline == prompt.Deadline {
			tc.pending = nil
			tc.state = TurnState_AwaitingMyAction
		}
		tc.mu.Unlock()

		tc.armDeadline(prompt)

		return err
	}

	return nil
}

func (tc *turnController) HandleActionResult(result ActionResult) {
	tc.mu.Lock()

	if tc.pending != nil && result.RequestID != "" && result.RequestID != tc.pending.RequestID {
		// Result for an older request, nothing to resolve
		tc.mu.Unlock()
		return
	}

	tc.deadlineTimer.Cancel()
	tc.pending = nil
	tc.prompt = nil
	tc.state = TurnState_Idle
	onActionResolved := tc.onActionResolved
	tc.mu.Unlock()

	onActionResolved(result)
}

func (tc *turnController) Reset() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.deadlineTimer.Cancel()
	tc.prompt = nil
	tc.pending = nil
	tc.state = TurnState_Idle
}
