package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without_wrapped_error",
			err:      New(ErrNotFound, "pack not found"),
			expected: "[NOT_FOUND] pack not found",
		},
		{
			name:     "with_wrapped_error",
			err:      Wrap(fmt.Errorf("connection refused"), ErrNetwork, "fetch failed"),
			expected: "[NETWORK] fetch failed: connection refused",
		},
		{
			name:     "formatted_message",
			err:      Newf(ErrConflict, "component %s already exists", "focus-mode"),
			expected: "[CONFLICT] component focus-mode already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestError_Is(t *testing.T) {
	err := New(ErrNotFound, "pack not found")
	assert.True(t, errors.Is(err, New(ErrNotFound, "other message")))
	assert.False(t, errors.Is(err, New(ErrConflict, "pack not found")))
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrInternal, "should be nil"))
	assert.Nil(t, Wrapf(nil, ErrInternal, "should be %s", "nil"))
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := Wrap(cause, ErrFileAccess, "read failed")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrNotFound, "pack not found").
		WithDetail("pack", "productivity-suite").
		WithDetail("sources", []string{"local", "community"})

	details := GetErrorDetails(err)
	assert.Equal(t, "productivity-suite", details["pack"])
	assert.Equal(t, []string{"local", "community"}, details["sources"])
}

func TestIsErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", New(ErrIntegrity, "checksum mismatch"))
	assert.True(t, IsErrorCode(wrapped, ErrIntegrity))
	assert.False(t, IsErrorCode(wrapped, ErrNetwork))
	assert.False(t, IsErrorCode(fmt.Errorf("plain"), ErrIntegrity))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrDependency, GetErrorCode(New(ErrDependency, "cycle")))
	assert.Equal(t, ErrUnknown, GetErrorCode(fmt.Errorf("plain")))
}
