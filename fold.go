package pokerclient

import (
	"sync"
	"time"

	"github.com/weedbox/timebank"
	"go.uber.org/zap"
)

type FoldDecisionState string

const (
	FoldDecisionState_Selecting FoldDecisionState = "selecting"
	FoldDecisionState_Showing   FoldDecisionState = "showing"
	FoldDecisionState_Mucking   FoldDecisionState = "mucking"
	FoldDecisionState_Done      FoldDecisionState = "done"
)

// FoldDecision is the reveal-or-conceal countdown entered when the
// local player folds with hole cards still eligible for a voluntary
// reveal. Exactly one option is ever resolved; the countdown expiring
// resolves to muck, which is a defined default rather than an error.
type FoldDecision interface {
	OnCompleted(fn func(option FoldOption))

	Start() error
	Select(option FoldOption) error
	Teardown()

	State() FoldDecisionState
	ResolvedOption() (FoldOption, bool)
}

type FoldDecisionOpt func(*foldDecision)

type foldDecision struct {
	mu             sync.Mutex
	state          FoldDecisionState
	option         FoldOption
	resolved       bool
	started        bool
	torn           bool
	countdown      time.Duration
	revealHold     time.Duration
	countdownTimer *timebank.TimeBank
	holdTimer      *timebank.TimeBank
	onCompleted    func(FoldOption)
	logger         *zap.Logger
}

func NewFoldDecision(opts ...FoldDecisionOpt) FoldDecision {
	fd := &foldDecision{
		state:          FoldDecisionState_Selecting,
		countdown:      DefaultFoldCountdown,
		revealHold:     DefaultRevealHold,
		countdownTimer: timebank.NewTimeBank(),
		holdTimer:      timebank.NewTimeBank(),
		onCompleted:    func(FoldOption) {},
		logger:         zap.NewNop(),
	}

	for _, opt := range opts {
		opt(fd)
	}

	return fd
}

func WithFoldCountdown(d time.Duration) FoldDecisionOpt {
	return func(fd *foldDecision) {
		fd.countdown = d
	}
}

func WithRevealHold(d time.Duration) FoldDecisionOpt {
	return func(fd *foldDecision) {
		fd.revealHold = d
	}
}

func WithFoldLogger(logger *zap.Logger) FoldDecisionOpt {
	return func(fd *foldDecision) {
		if logger != nil {
			fd.logger = logger
		}
	}
}

func (fd *foldDecision) OnCompleted(fn func(FoldOption)) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	fd.onCompleted = fn
}

func (fd *foldDecision) Start() error {
	fd.mu.Lock()
	if fd.started || fd.torn {
		fd.mu.Unlock()
		return nil
	}
	fd.started = true
	countdown := fd.countdown
	fd.mu.Unlock()

	return fd.countdownTimer.NewTask(countdown, func(isCancelled bool) {
		if isCancelled {
			return
		}

		// No input before the countdown expired
		fd.resolve(FoldOption_Muck)
	})
}

func (fd *foldDecision) Select(option FoldOption) error {
	switch option {
	case FoldOption_ShowCard1, FoldOption_ShowCard2, FoldOption_ShowAll, FoldOption_Muck:
	default:
		return ErrFoldInvalidOption
	}

	fd.mu.Lock()
	started := fd.started
	fd.mu.Unlock()
	if !started {
		return ErrFoldNotStarted
	}

	return fd.resolve(option)
}

// resolve is the one-shot transition out of Selecting. Later selection
// attempts, explicit or from a stale timer, are ignored.
func (fd *foldDecision) resolve(option FoldOption) error {
	fd.mu.Lock()

	if fd.resolved || fd.torn {
		fd.mu.Unlock()
		return ErrFoldAlreadyResolved
	}

	fd.resolved = true
	fd.option = option
	fd.countdownTimer.Cancel()

	if option.IsShow() {
		// Hold the reveal on screen before signaling completion
		fd.state = FoldDecisionState_Showing
		revealHold := fd.revealHold
		fd.mu.Unlock()

		return fd.holdTimer.NewTask(revealHold, func(isCancelled bool) {
			if isCancelled {
				return
			}

			fd.complete()
		})
	}

	fd.state = FoldDecisionState_Mucking
	fd.mu.Unlock()

	fd.complete()

	return nil
}

func (fd *foldDecision) complete() {
	fd.mu.Lock()
	if fd.state == FoldDecisionState_Done || fd.torn {
		fd.mu.Unlock()
		return
	}

	fd.state = FoldDecisionState_Done
	option := fd.option
	onCompleted := fd.onCompleted
	fd.mu.Unlock()

	onCompleted(option)
}

// Teardown cancels any armed timer so a late callback can not fire
// against stale state, e.g. when the hand moves on before resolution.
func (fd *foldDecision) Teardown() {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	fd.torn = true
	fd.countdownTimer.Cancel()
	fd.holdTimer.Cancel()
}

func (fd *foldDecision) State() FoldDecisionState {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.state
}

func (fd *foldDecision) ResolvedOption() (FoldOption, bool) {
	fd.mu.Lock()
	defer fd.mu.Unlock()
	return fd.option, fd.resolved
}
