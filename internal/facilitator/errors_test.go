package facilitator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorHTTPStatus(t *testing.T) {
	cases := []struct {
		kind ErrorKind
		want int
	}{
		{KindValidation, 422},
		{KindNotFound, 404},
		{KindAccessDenied, 403},
		{KindUnavailable, 503},
		{KindLoaderError, 502},
		{KindPersistence, 200},
		{KindBootFatal, 0},
		{KindInternal, 500},
	}
	for _, tc := range cases {
		e := &Error{Kind: tc.kind}
		assert.Equal(t, tc.want, e.HTTPStatus(), "kind=%s", tc.kind)
	}
}

func TestErrorMessageIncludesField(t *testing.T) {
	e := newValidationError(ReasonBadID, "slug", "slug is required")
	assert.Contains(t, e.Error(), "slug is required")
	assert.Contains(t, e.Error(), "field=slug")
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	e := newLoaderError("query failed", cause)
	assert.Same(t, cause, errors.Unwrap(e))
	assert.True(t, errors.Is(e, cause))
}

func TestNewErrorConstructors(t *testing.T) {
	assert.Equal(t, KindNotFound, newNotFoundError("missing").Kind)
	assert.Equal(t, KindAccessDenied, newAccessDeniedError("denied").Kind)
	assert.Equal(t, KindUnavailable, newUnavailableError("down").Kind)
	assert.Equal(t, KindPersistence, newPersistenceError("save failed", nil).Kind)
	assert.Equal(t, KindBootFatal, newBootFatalError("no_db_no_lkg").Kind)
	assert.Equal(t, KindInternal, newInternalError("oops", nil).Kind)
}
