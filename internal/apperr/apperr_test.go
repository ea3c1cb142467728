package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", Validation("explanation", "must not be empty"), http.StatusBadRequest, "validation_error"},
		{"not found", NotFound("contest", "c1"), http.StatusNotFound, "not_found"},
		{"conflict", Conflict("contest", "c1", "approved", "deny"), http.StatusConflict, "state_conflict"},
		{"forbidden", Forbidden("not your violation"), http.StatusForbidden, "forbidden"},
		{"persistence", Persistence("review", errors.New("conn reset")), http.StatusInternalServerError, "internal_error"},
		{"wrapped conflict", fmt.Errorf("review: %w", Conflict("contest", "c1", "denied", "approve")), http.StatusConflict, "state_conflict"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, HTTPStatus(tc.err))
			assert.Equal(t, tc.code, Code(tc.err))
		})
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("broken pipe")
	err := Persistence("insert contest", cause)
	assert.ErrorIs(t, err, cause)

	terr := &TransportError{Op: "dial", Err: cause}
	assert.ErrorIs(t, terr, cause)
	assert.Contains(t, terr.Error(), "dial")
}
