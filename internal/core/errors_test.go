package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClasses(t *testing.T) {
	verr := &ValidationError{Field: "amount", Err: ErrNegativeAmount}
	assert.ErrorIs(t, verr, ErrValidation)
	assert.ErrorIs(t, verr, ErrNegativeAmount)
	assert.Equal(t, "invalid amount: amount must not be negative", verr.Error())

	nf := fmt.Errorf("update: %w", &NotFoundError{Kind: "entry", ID: "x"})
	assert.True(t, IsNotFound(nf))
	assert.False(t, IsValidation(nf))

	aerr := &AuthError{Code: "auth/wrong-password", Op: "signin"}
	assert.ErrorIs(t, aerr, ErrUnauthorized)
	var target *AuthError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", aerr), &target))
	assert.Equal(t, "auth/wrong-password", target.Code)
}

func TestUnavailable(t *testing.T) {
	assert.NoError(t, Unavailable("op", nil))

	cause := errors.New("disk I/O error")
	err := Unavailable("list entries", cause)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, cause)

	nf := &NotFoundError{Kind: "entry", ID: "1"}
	assert.Same(t, nf, Unavailable("get", nf))
}
