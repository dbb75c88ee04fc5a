package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mahaj/groupchat/pkg/apperr"
	"github.com/mahaj/groupchat/pkg/model"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil, "group"))

	err := Classify(ErrNotFound, "group")
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	assert.Equal(t, "group not found", apperr.MessageOf(err))

	err = Classify(fmt.Errorf("%w: idx", ErrDuplicate), "membership")
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	err = Classify(fmt.Errorf("%w: role: name is required", model.ErrInvalidDocument), "role")
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))

	forbidden := apperr.Forbiddenf("nope")
	assert.Same(t, forbidden, Classify(forbidden, "role"))

	err = Classify(errors.New("disk full"), "message")
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}
