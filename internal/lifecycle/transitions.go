package lifecycle

import (
	"context"
	"errors"
	"sort"

	"github.com/looplab/fsm"
	"violation-service/internal/apperr"
	"violation-service/internal/models"
)

// ViolationEvent drives the violation state machine.
type ViolationEvent string

const (
	EventContest     ViolationEvent = "contest"
	EventApprove     ViolationEvent = "approve"
	EventDeny        ViolationEvent = "deny"
	EventUnderReview ViolationEvent = "under_review"
	EventReject      ViolationEvent = "reject"
)

var violationEvents = fsm.Events{
	{Name: string(EventContest), Src: []string{string(models.ViolationPending)}, Dst: string(models.ViolationContested)},
	{Name: string(EventApprove), Src: []string{string(models.ViolationContested)}, Dst: string(models.ViolationResolved)},
	{Name: string(EventDeny), Src: []string{string(models.ViolationContested)}, Dst: string(models.ViolationClosed)},
	{Name: string(EventUnderReview), Src: []string{string(models.ViolationContested)}, Dst: string(models.ViolationContested)},
	{Name: string(EventReject), Src: []string{string(models.ViolationPending)}, Dst: string(models.ViolationRejected)},
}

var activeContest = []string{string(models.ContestPending), string(models.ContestUnderReview)}

var contestEvents = fsm.Events{
	{Name: string(models.ActionApprove), Src: activeContest, Dst: string(models.ContestApproved)},
	{Name: string(models.ActionDeny), Src: activeContest, Dst: string(models.ContestDenied)},
	{Name: string(models.ActionUnderReview), Src: activeContest, Dst: string(models.ContestUnderReview)},
}

// run evaluates one event against a fresh machine positioned at from.
// A self-transition is reported by looplab/fsm as NoTransitionError and is
// a legal move here.
func run(events fsm.Events, from, event string) (string, error) {
	machine := fsm.NewFSM(from, events, fsm.Callbacks{})
	err := machine.Event(context.Background(), event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return from, err
	}
	return machine.Current(), nil
}

// NextViolationStatus is the single transition function every violation
// mutation goes through.
func NextViolationStatus(id string, from models.ViolationStatus, ev ViolationEvent) (models.ViolationStatus, error) {
	to, err := run(violationEvents, string(from), string(ev))
	if err != nil {
		return from, apperr.Conflict("violation", id, string(from), string(ev))
	}
	return models.ViolationStatus(to), nil
}

// NextContestStatus is the single transition function every contest review
// goes through. Terminal contests accept no action.
func NextContestStatus(id string, from models.ContestStatus, action models.ReviewAction) (models.ContestStatus, error) {
	to, err := run(contestEvents, string(from), string(action))
	if err != nil {
		return from, apperr.Conflict("contest", id, string(from), string(action))
	}
	return models.ContestStatus(to), nil
}

// ViolationEventFor maps a review action to the violation event it implies.
func ViolationEventFor(action models.ReviewAction) ViolationEvent {
	switch action {
	case models.ActionApprove:
		return EventApprove
	case models.ActionDeny:
		return EventDeny
	default:
		return EventUnderReview
	}
}

// PermittedActions lists the review actions still available for a contest in
// the given status. Empty for terminal contests.
func PermittedActions(status models.ContestStatus) []models.ReviewAction {
	machine := fsm.NewFSM(string(status), contestEvents, fsm.Callbacks{})
	names := machine.AvailableTransitions()
	sort.Strings(names)
	actions := make([]models.ReviewAction, 0, len(names))
	for _, n := range names {
		actions = append(actions, models.ReviewAction(n))
	}
	return actions
}
