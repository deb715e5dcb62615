package actor

import (
	"math/rand"
	"time"

	"github.com/weedbox/pokerclient"
	"github.com/weedbox/timebank"
)

type ActionSubmittedFunc func(tableID string, action pokerclient.ActionType, amount int64)

type ActionProbability struct {
	Action pokerclient.ActionType
	Weight float64
}

var (
	actionProbabilities = []ActionProbability{
		{Action: pokerclient.ActionType_Check, Weight: 0.1},
		{Action: pokerclient.ActionType_Call, Weight: 0.3},
		{Action: pokerclient.ActionType_Fold, Weight: 0.15},
		{Action: pokerclient.ActionType_AllIn, Weight: 0.05},
		{Action: pokerclient.ActionType_Raise, Weight: 0.3},
		{Action: pokerclient.ActionType_Bet, Weight: 0.1},
	}
)

// botRunner plays a seat automatically by reacting to turn prompts.
// It only ever picks among the actions the prompt offers, so it stays
// legal no matter what the server allows on a given street.
type botRunner struct {
	client            pokerclient.Client
	isHumanized       bool
	timebank          *timebank.TimeBank
	onActionSubmitted ActionSubmittedFunc
}

func NewBotRunner(client pokerclient.Client) *botRunner {
	return &botRunner{
		client:            client,
		timebank:          timebank.NewTimeBank(),
		onActionSubmitted: func(string, pokerclient.ActionType, int64) {},
	}
}

func (br *botRunner) Humanized(enabled bool) {
	br.isHumanized = enabled
}

func (br *botRunner) OnActionSubmitted(fn ActionSubmittedFunc) error {
	br.onActionSubmitted = fn
	return nil
}

func (br *botRunner) HandleTurnPrompt(prompt pokerclient.TurnPrompt) error {

	if len(prompt.AllowedActions) == 0 {
		return nil
	}

	if !br.isHumanized {
		return br.requestMove(prompt)
	}

	// For simulating human-like behavior, to incorporate random delays
	// when performing actions.
	remaining := time.Until(time.UnixMilli(prompt.Deadline))
	if remaining <= 0 {
		return br.requestMove(prompt)
	}

	thinkingTime := time.Duration(rand.Int63n(int64(remaining)))
	if thinkingTime == 0 {
		return br.requestMove(prompt)
	}

	return br.timebank.NewTask(thinkingTime, func(isCancelled bool) {

		if isCancelled {
			return
		}

		br.requestMove(prompt)
	})
}

func (br *botRunner) Stop() {
	br.timebank.Cancel()
}

func (br *botRunner) requestMove(prompt pokerclient.TurnPrompt) error {

	action := br.calcAction(prompt.AllowedActions)

	// Calculate chips
	chips := int64(0)

	switch action.Type {
	case pokerclient.ActionType_Bet, pokerclient.ActionType_Raise:

		minChipLevel := action.MinAmount
		maxChipLevel := action.MaxAmount

		if maxChipLevel <= minChipLevel {
			chips = minChipLevel
		} else {
			chips = rand.Int63n(maxChipLevel-minChipLevel) + minChipLevel
		}
	case pokerclient.ActionType_Call:
		chips = action.Amount
	}

	err := br.client.SubmitAction(action.Type, chips)
	if err != nil {
		return err
	}

	br.onActionSubmitted(prompt.TableID, action.Type, chips)
	return nil
}

func (br *botRunner) calcActionProbabilities(actions []pokerclient.AllowedAction) map[pokerclient.ActionType]float64 {

	probabilities := make(map[pokerclient.ActionType]float64)
	totalWeight := 0.0
	for _, action := range actions {

		for _, p := range actionProbabilities {
			if action.Type == p.Action {
				probabilities[action.Type] = p.Weight
				totalWeight += p.Weight
				break
			}
		}
	}

	scaleRatio := 1.0 / totalWeight
	weightLevel := 0.0
	for action, weight := range probabilities {
		scaledWeight := weight * scaleRatio
		weightLevel += scaledWeight
		probabilities[action] = weightLevel
	}

	return probabilities
}

func (br *botRunner) calcAction(actions []pokerclient.AllowedAction) pokerclient.AllowedAction {

	if len(actions) == 1 {
		return actions[0]
	}

	// Select action randomly
	probabilities := br.calcActionProbabilities(actions)
	randomNum := rand.Float64()

	for _, action := range actions {
		if probability, ok := probabilities[action.Type]; ok && randomNum < probability {
			return action
		}
	}

	return actions[len(actions)-1]
}
