package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("invite: %w", Conflictf("user %s is already a member", "u1"))

	assert.Equal(t, Conflict, KindOf(err))
	assert.Equal(t, http.StatusConflict, KindOf(err).Status())
	assert.Equal(t, "user u1 is already a member", MessageOf(err))
	assert.True(t, errors.Is(err, Of(Conflict)))
	assert.False(t, errors.Is(err, Of(NotFound)))
}

func TestUnclassifiedIsInternal(t *testing.T) {
	err := errors.New("disk on fire")
	assert.Equal(t, Internal, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, KindOf(err).Status())
	assert.Equal(t, "internal error", MessageOf(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(Internal, cause, "persist message")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, NotAMember.Status())
	assert.Equal(t, http.StatusForbidden, Forbidden.Status())
	assert.Equal(t, http.StatusNotImplemented, NotImplemented.Status())
	assert.Equal(t, http.StatusBadRequest, InvalidReference.Status())
	assert.Equal(t, http.StatusUnauthorized, Unauthenticated.Status())
	assert.Equal(t, http.StatusTooManyRequests, RateLimited.Status())
}
