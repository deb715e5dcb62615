package pokerclient

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/thoas/go-funk"
	"github.com/weedbox/syncsaga"
	"go.uber.org/zap"
)

// TableView is the authoritative-as-known state of one table, built
// from the last snapshot plus any deltas applied on top of it.
type TableView struct {
	TableID        string     `json:"table_id"`
	Phase          GamePhase  `json:"phase"`
	Pot            int64      `json:"pot"`
	CurrentBet     int64      `json:"current_bet"`
	MinRaise       int64      `json:"min_raise"`
	CommunityCards []string   `json:"community_cards"`
	Seats          []SeatInfo `json:"seats"`
	UpdateAt       int64      `json:"update_at"`     // 更新時間 (Milliseconds)
	UpdateSerial   int64      `json:"update_serial"` // 更新序列號 (數字越大越晚發生)
}

// TableStore maintains the client-side view of every subscribed table.
// Snapshots replace a view wholesale; deltas merge only the fields they
// carry. A delta that arrives before its table's snapshot in the
// current subscription is discarded, never buffered or reordered.
type TableStore interface {
	// Events
	OnViewUpdated(fn func(tableID string, view *TableView))
	OnDeltaDiscarded(fn func(delta TableDelta))
	OnResynced(fn func(tableIDs []string))

	// Subscription lifecycle
	Subscribe(tableID string)
	Unsubscribe(tableID string)
	SubscribedTables() []string

	// State updates
	ApplySnapshot(snapshot TableSnapshot) error
	ApplyDelta(delta TableDelta) error
	BeginResync()

	// Getters
	GetView(tableID string) (*TableView, bool)
	OccupiedSeats(tableID string) []SeatInfo
	SeatOf(tableID, playerID string) int
	DiscardedDeltaCount() int64
	Reset()
}

type tableEntry struct {
	view        *TableView
	hasSnapshot bool
}

type tableStore struct {
	mu               sync.Mutex
	entries          map[string]*tableEntry
	rg               *syncsaga.ReadyGroup
	resyncTableIDs   []string
	resyncing        bool
	resyncTimeout    int
	discardedDeltas  int64
	onViewUpdated    func(string, *TableView)
	onDeltaDiscarded func(TableDelta)
	onResynced       func([]string)
	logger           *zap.Logger
}

func NewTableStore(logger *zap.Logger) TableStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &tableStore{
		entries:          make(map[string]*tableEntry),
		rg:               syncsaga.NewReadyGroup(),
		resyncTimeout:    DefaultResyncTimeout,
		onViewUpdated:    func(string, *TableView) {},
		onDeltaDiscarded: func(TableDelta) {},
		onResynced:       func([]string) {},
		logger:           logger,
	}
}

func (ts *tableStore) OnViewUpdated(fn func(string, *TableView)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.onViewUpdated = fn
}

func (ts *tableStore) OnDeltaDiscarded(fn func(TableDelta)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.onDeltaDiscarded = fn
}

func (ts *tableStore) OnResynced(fn func([]string)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.onResynced = fn
}

func (ts *tableStore) Subscribe(tableID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	// A resubscription always requires a fresh snapshot before any
	// delta is accepted again.
	ts.entries[tableID] = &tableEntry{
		view:        nil,
		hasSnapshot: false,
	}
}

func (ts *tableStore) Unsubscribe(tableID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	delete(ts.entries, tableID)
}

func (ts *tableStore) SubscribedTables() []string {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	tableIDs := make([]string, 0, len(ts.entries))
	for tableID := range ts.entries {
		tableIDs = append(tableIDs, tableID)
	}
	return tableIDs
}

func (ts *tableStore) ApplySnapshot(snapshot TableSnapshot) error {
	ts.mu.Lock()

	entry, ok := ts.entries[snapshot.TableID]
	if !ok {
		ts.mu.Unlock()
		return ErrTableNotSubscribed
	}

	serial := int64(1)
	if entry.view != nil {
		serial = entry.view.UpdateSerial + 1
	}

	// Full replacement, never a field-by-field merge
	entry.view = &TableView{
		TableID:        snapshot.TableID,
		Phase:          snapshot.Phase,
		Pot:            snapshot.Pot,
		CurrentBet:     snapshot.CurrentBet,
		MinRaise:       snapshot.MinRaise,
		CommunityCards: snapshot.CommunityCards,
		Seats:          snapshot.Seats,
		UpdateAt:       time.Now().UnixMilli(),
		UpdateSerial:   serial,
	}
	entry.hasSnapshot = true

	view := cloneTableView(entry.view)
	onViewUpdated := ts.onViewUpdated
	resyncing := ts.resyncing
	ts.mu.Unlock()

	if resyncing {
		ts.markResynced(snapshot.TableID)
	}

	onViewUpdated(snapshot.TableID, view)

	return nil
}

func (ts *tableStore) ApplyDelta(delta TableDelta) error {
	ts.mu.Lock()

	entry, ok := ts.entries[delta.TableID]
	if !ok || !entry.hasSnapshot {
		ts.discardedDeltas++
		onDeltaDiscarded := ts.onDeltaDiscarded
		ts.mu.Unlock()

		ts.logger.Debug("delta discarded, no snapshot for table yet",
			zap.String("table_id", delta.TableID),
		)
		onDeltaDiscarded(delta)

		return ErrTableSnapshotMissing
	}

	view := entry.view
	if delta.Phase != nil {
		view.Phase = *delta.Phase
	}
	if delta.Pot != nil {
		view.Pot = *delta.Pot
	}
	if delta.CurrentBet != nil {
		view.CurrentBet = *delta.CurrentBet
	}
	if delta.MinRaise != nil {
		view.MinRaise = *delta.MinRaise
	}
	if delta.CommunityCards != nil {
		view.CommunityCards = delta.CommunityCards
	}
	for _, seat := range delta.Seats {
		if seat.Position < 0 || seat.Position >= len(view.Seats) {
			ts.logger.Warn("seat delta position out of range",
				zap.String("table_id", delta.TableID),
				zap.Int("position", seat.Position),
			)
			continue
		}
		view.Seats[seat.Position] = seat
	}

	view.UpdateAt = time.Now().UnixMilli()
	view.UpdateSerial++

	cloned := cloneTableView(view)
	onViewUpdated := ts.onViewUpdated
	ts.mu.Unlock()

	onViewUpdated(delta.TableID, cloned)

	return nil
}

/*
BeginResync invalidates every subscribed table after a reconnection and
arms a ready group that completes once all of them have received a
fresh snapshot. Deltas arriving before their table is ready fall into
the regular discard path.
*/
func (ts *tableStore) BeginResync() {
	ts.mu.Lock()

	tableIDs := make([]string, 0, len(ts.entries))
	for tableID, entry := range ts.entries {
		entry.hasSnapshot = false
		tableIDs = append(tableIDs, tableID)
	}

	if len(tableIDs) == 0 {
		ts.resyncing = false
		ts.mu.Unlock()
		return
	}

	ts.resyncTableIDs = tableIDs
	ts.resyncing = true

	rg := ts.rg
	timeout := ts.resyncTimeout
	ts.mu.Unlock()

	rg.Stop()
	rg.SetTimeoutInterval(timeout)
	rg.OnTimeout(func(rg *syncsaga.ReadyGroup) {
		// Auto ready stragglers so one missing snapshot can not block
		// the whole session.
		states := rg.GetParticipantStates()
		for idx, isReady := range states {
			if !isReady {
				ts.logger.Warn("table did not resync in time",
					zap.String("table_id", tableIDs[idx]),
				)
				rg.Ready(idx)
			}
		}
	})
	rg.OnCompleted(func(rg *syncsaga.ReadyGroup) {
		ts.mu.Lock()
		ts.resyncing = false
		onResynced := ts.onResynced
		ts.mu.Unlock()

		onResynced(tableIDs)
	})

	rg.ResetParticipants()
	for idx := range tableIDs {
		rg.Add(int64(idx), false)
	}
	rg.Start()
}

func (ts *tableStore) markResynced(tableID string) {
	ts.mu.Lock()
	rg := ts.rg
	tableIDs := ts.resyncTableIDs
	ts.mu.Unlock()

	for idx, id := range tableIDs {
		if id == tableID {
			rg.Ready(int64(idx))
			return
		}
	}
}

func (ts *tableStore) GetView(tableID string) (*TableView, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.entries[tableID]
	if !ok || entry.view == nil {
		return nil, false
	}

	return cloneTableView(entry.view), true
}

func (ts *tableStore) OccupiedSeats(tableID string) []SeatInfo {
	view, ok := ts.GetView(tableID)
	if !ok {
		return []SeatInfo{}
	}

	return funk.Filter(view.Seats, func(seat SeatInfo) bool {
		return seat.Status != SeatStatus_Empty && seat.PlayerID != ""
	}).([]SeatInfo)
}

// SeatOf returns the seat position occupied by playerID, or UnsetValue.
func (ts *tableStore) SeatOf(tableID, playerID string) int {
	view, ok := ts.GetView(tableID)
	if !ok || playerID == "" {
		return UnsetValue
	}

	for _, seat := range view.Seats {
		if seat.PlayerID == playerID {
			return seat.Position
		}
	}
	return UnsetValue
}

func (ts *tableStore) DiscardedDeltaCount() int64 {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.discardedDeltas
}

func (ts *tableStore) Reset() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.rg.Stop()
	ts.rg.ResetParticipants()
	ts.resyncing = false
	ts.entries = make(map[string]*tableEntry)
}

func cloneTableView(view *TableView) *TableView {
	// Note: we must clone a new structure for preventing original data
	// of the store is modified outside.
	data, err := json.Marshal(view)
	if err != nil {
		return nil
	}

	var cloned TableView
	err = json.Unmarshal(data, &cloned)
	if err != nil {
		return nil
	}

	return &cloned
}
