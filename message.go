package pokerclient

import (
	"encoding/json"
)

// MessageType is the closed set of message kinds carried by the wire
// envelope. Handlers are registered against these values.
type MessageType string

const (
	// Inbound
	MessageType_ConnectionState  MessageType = "CONNECTION_STATE"
	MessageType_Error            MessageType = "ERROR"
	MessageType_TableSnapshot    MessageType = "TABLE_SNAPSHOT"
	MessageType_TableStateUpdate MessageType = "TABLE_STATE_UPDATE"
	MessageType_TurnPrompt       MessageType = "TURN_PROMPT"
	MessageType_ActionResult     MessageType = "ACTION_RESULT"
	MessageType_ShowdownResult   MessageType = "SHOWDOWN_RESULT"
	MessageType_ChatBroadcast    MessageType = "CHAT_BROADCAST"

	// Outbound
	MessageType_Auth             MessageType = "AUTH"
	MessageType_Ping             MessageType = "PING"
	MessageType_SubscribeTable   MessageType = "SUBSCRIBE_TABLE"
	MessageType_UnsubscribeTable MessageType = "UNSUBSCRIBE_TABLE"
	MessageType_PlayerAction     MessageType = "PLAYER_ACTION"
	MessageType_FoldReveal       MessageType = "FOLD_REVEAL"
	MessageType_LeaveTable       MessageType = "LEAVE_TABLE"

	// Local only, emitted by the router itself and never sent on the wire
	MessageType_SendFailed MessageType = "SEND_FAILED"
)

// Server error codes forwarded to collaborators as-is. The client never
// interprets or localizes them.
const (
	ErrorCode_NoAvailableRoom     = "NO_AVAILABLE_ROOM"
	ErrorCode_InsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrorCode_AlreadySeated       = "ALREADY_SEATED"
	ErrorCode_RoomFull            = "ROOM_FULL"
	ErrorCode_Unauthorized        = "UNAUTHORIZED"
)

// Message is the bidirectional wire envelope.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	msg := &Message{
		Type: msgType,
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = data
	}

	return msg, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

type GamePhase string

const (
	GamePhase_Idle     GamePhase = "idle"
	GamePhase_Preflop  GamePhase = "preflop"
	GamePhase_Flop     GamePhase = "flop"
	GamePhase_Turn     GamePhase = "turn"
	GamePhase_River    GamePhase = "river"
	GamePhase_Showdown GamePhase = "showdown"
)

type SeatStatus string

const (
	SeatStatus_Empty      SeatStatus = "empty"
	SeatStatus_Active     SeatStatus = "active"
	SeatStatus_Waiting    SeatStatus = "waiting"
	SeatStatus_Folded     SeatStatus = "folded"
	SeatStatus_SittingOut SeatStatus = "sitting_out"
	SeatStatus_AllIn      SeatStatus = "all_in"
)

type ActionType string

const (
	ActionType_Fold  ActionType = "fold"
	ActionType_Check ActionType = "check"
	ActionType_Call  ActionType = "call"
	ActionType_Bet   ActionType = "bet"
	ActionType_Raise ActionType = "raise"
	ActionType_AllIn ActionType = "all_in"
)

type SubscribeMode string

const (
	SubscribeMode_Player    SubscribeMode = "player"
	SubscribeMode_Spectator SubscribeMode = "spectator"
)

// FoldOption is the reveal choice resolved by a fold decision.
type FoldOption string

const (
	FoldOption_ShowCard1 FoldOption = "show_card_1"
	FoldOption_ShowCard2 FoldOption = "show_card_2"
	FoldOption_ShowAll   FoldOption = "show_all"
	FoldOption_Muck      FoldOption = "muck"
)

// IsShow returns true for options that reveal at least one hole card.
func (o FoldOption) IsShow() bool {
	return o == FoldOption_ShowCard1 || o == FoldOption_ShowCard2 || o == FoldOption_ShowAll
}

type AuthPayload struct {
	Token string `json:"token"`
}

type ConnectionStatePayload struct {
	PlayerID   string `json:"player_id"`
	SessionID  string `json:"session_id,omitempty"`
	ServerTime int64  `json:"server_time,omitempty"` // Milliseconds
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type SeatInfo struct {
	Position  int        `json:"position"`            // 0 ~ TableMaxSeatCount-1
	PlayerID  string     `json:"player_id,omitempty"` // empty seat has no occupant
	StackSize int64      `json:"stack_size"`
	StreetBet int64      `json:"street_bet"` // wager committed on the current street
	TotalBet  int64      `json:"total_bet"`  // cumulative wager for the hand
	Status    SeatStatus `json:"status"`
}

// TableSnapshot is a full-state replacement for one table.
type TableSnapshot struct {
	TableID        string     `json:"table_id"`
	Phase          GamePhase  `json:"phase"`
	Pot            int64      `json:"pot"`
	CurrentBet     int64      `json:"current_bet"`
	MinRaise       int64      `json:"min_raise"`
	CommunityCards []string   `json:"community_cards"`
	Seats          []SeatInfo `json:"seats"`
}

// TableDelta is a partial update applied on top of the last snapshot.
// Only non-nil fields are merged; Seats entries replace the seat at the
// same position wholesale.
type TableDelta struct {
	TableID        string     `json:"table_id"`
	Phase          *GamePhase `json:"phase,omitempty"`
	Pot            *int64     `json:"pot,omitempty"`
	CurrentBet     *int64     `json:"current_bet,omitempty"`
	MinRaise       *int64     `json:"min_raise,omitempty"`
	CommunityCards []string   `json:"community_cards,omitempty"`
	Seats          []SeatInfo `json:"seats,omitempty"`
}

// AllowedAction is one legal move offered by a turn prompt. Amount is a
// fixed amount (call). MinAmount/MaxAmount bound bet and raise sizes;
// zero means the server left the bound to the client defaults.
type AllowedAction struct {
	Type      ActionType `json:"type"`
	Amount    int64      `json:"amount,omitempty"`
	MinAmount int64      `json:"min_amount,omitempty"`
	MaxAmount int64      `json:"max_amount,omitempty"`
}

type TurnPrompt struct {
	TableID        string          `json:"table_id"`
	Position       int             `json:"position"`
	AllowedActions []AllowedAction `json:"allowed_actions"`
	Deadline       int64           `json:"deadline_ms"` // Unix milliseconds
}

// HasAction returns the allowed action matching actionType, if any.
func (p TurnPrompt) HasAction(actionType ActionType) (AllowedAction, bool) {
	for _, action := range p.AllowedActions {
		if action.Type == actionType {
			return action, true
		}
	}
	return AllowedAction{}, false
}

type ActionRequest struct {
	RequestID string     `json:"request_id"`
	TableID   string     `json:"table_id"`
	Action    ActionType `json:"action"`
	Amount    int64      `json:"amount,omitempty"`
}

type ActionResult struct {
	RequestID string `json:"request_id,omitempty"`
	TableID   string `json:"table_id"`
	Ok        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

type SubscribeTablePayload struct {
	TableID string        `json:"table_id"`
	Mode    SubscribeMode `json:"mode"`
}

type UnsubscribeTablePayload struct {
	TableID string `json:"table_id"`
}

type LeaveTablePayload struct {
	TableID string `json:"table_id"`
}

type FoldRevealPayload struct {
	TableID string     `json:"table_id"`
	Option  FoldOption `json:"option"`
}

// SendFailure describes an outbound message that could not be
// transmitted. It is delivered to the send-failure callback and emitted
// as a SEND_FAILED event so the fact is never silently dropped.
type SendFailure struct {
	OriginalType MessageType     `json:"original_type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Reason       string          `json:"reason"`
}
