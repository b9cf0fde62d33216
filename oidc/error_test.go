package oidc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "code-only", err: NewError(ErrCodeNetwork, "", nil), want: "code -1"},
		{name: "msg", err: NewError(401, "unauthorized", nil), want: "code 401: unauthorized"},
		{
			name: "all",
			err: &Error{
				Code:       400,
				OAuthError: "invalid_grant",
				Msg:        "refresh failed",
				Wrapped:    ErrRefreshFailed,
			},
			want: "code 400 (invalid_grant): refresh failed: refresh failed",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	e := NewError(ErrCodeInvalidState, "bad state", ErrResponseStateInvalid)
	assert.ErrorIs(e, ErrResponseStateInvalid)
	wrapped := fmt.Errorf("outer: %w", e)
	var target *Error
	assert.True(errors.As(wrapped, &target))
	assert.Equal(ErrCodeInvalidState, target.Code)

	var nilErr *Error
	assert.Nil(nilErr.Unwrap())
}

func TestIsUserCancelled(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "cancelled", err: NewError(ErrCodeUserCancelled, "", ErrUserCancelled), want: true},
		{name: "wrapped-cancelled", err: fmt.Errorf("login: %w", NewError(ErrCodeUserCancelled, "", nil)), want: true},
		{name: "other-code", err: NewError(ErrCodeNetwork, "", ErrUserCancelled), want: false},
		{name: "sentinel-only", err: ErrUserCancelled, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsUserCancelled(tt.err))
		})
	}
}
