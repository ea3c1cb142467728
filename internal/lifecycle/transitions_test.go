package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"violation-service/internal/apperr"
	"violation-service/internal/models"
)

func TestNextViolationStatusGraph(t *testing.T) {
	cases := []struct {
		from models.ViolationStatus
		ev   ViolationEvent
		to   models.ViolationStatus
		ok   bool
	}{
		{models.ViolationPending, EventContest, models.ViolationContested, true},
		{models.ViolationPending, EventReject, models.ViolationRejected, true},
		{models.ViolationContested, EventApprove, models.ViolationResolved, true},
		{models.ViolationContested, EventDeny, models.ViolationClosed, true},
		{models.ViolationContested, EventUnderReview, models.ViolationContested, true},
		{models.ViolationPending, EventApprove, "", false},
		{models.ViolationContested, EventContest, "", false},
		{models.ViolationContested, EventReject, "", false},
	}
	for _, tc := range cases {
		got, err := NextViolationStatus("v1", tc.from, tc.ev)
		if !tc.ok {
			require.Error(t, err, "%s --%s-->", tc.from, tc.ev)
			assert.True(t, apperr.IsConflict(err))
			assert.Equal(t, tc.from, got)
			continue
		}
		require.NoError(t, err, "%s --%s-->", tc.from, tc.ev)
		assert.Equal(t, tc.to, got)
	}
}

func TestTerminalViolationsNeverReturnToPending(t *testing.T) {
	events := []ViolationEvent{EventContest, EventApprove, EventDeny, EventUnderReview, EventReject}
	for _, from := range []models.ViolationStatus{models.ViolationResolved, models.ViolationClosed, models.ViolationRejected} {
		for _, ev := range events {
			to, err := NextViolationStatus("v1", from, ev)
			assert.Error(t, err, "%s accepted %s", from, ev)
			assert.NotEqual(t, models.ViolationPending, to)
		}
	}
	// contested never goes back either
	for _, ev := range events {
		to, _ := NextViolationStatus("v1", models.ViolationContested, ev)
		assert.NotEqual(t, models.ViolationPending, to)
	}
}

func TestNextContestStatus(t *testing.T) {
	to, err := NextContestStatus("c1", models.ContestPending, models.ActionUnderReview)
	require.NoError(t, err)
	assert.Equal(t, models.ContestUnderReview, to)

	to, err = NextContestStatus("c1", models.ContestUnderReview, models.ActionUnderReview)
	require.NoError(t, err)
	assert.Equal(t, models.ContestUnderReview, to)

	to, err = NextContestStatus("c1", models.ContestUnderReview, models.ActionDeny)
	require.NoError(t, err)
	assert.Equal(t, models.ContestDenied, to)

	for _, terminal := range []models.ContestStatus{models.ContestApproved, models.ContestDenied} {
		for _, action := range []models.ReviewAction{models.ActionApprove, models.ActionDeny, models.ActionUnderReview} {
			_, err := NextContestStatus("c1", terminal, action)
			assert.True(t, apperr.IsConflict(err), "%s accepted %s", terminal, action)
		}
	}

	_, err = NextContestStatus("c1", models.ContestPending, models.ReviewAction("escalate"))
	assert.True(t, apperr.IsConflict(err))
}

func TestPermittedActions(t *testing.T) {
	assert.Equal(t,
		[]models.ReviewAction{models.ActionApprove, models.ActionDeny, models.ActionUnderReview},
		PermittedActions(models.ContestPending))
	assert.Empty(t, PermittedActions(models.ContestApproved))
}
