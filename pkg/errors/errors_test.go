package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Unwrap(t *testing.T) {
	err := Newf(ErrConfiguration, "%s is not set", "GOOGLE_APPLICATION_CREDENTIALS")

	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Equal(t, "configuration error: GOOGLE_APPLICATION_CREDENTIALS is not set", err.Error())
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{New(ErrConfiguration, "x"), "configuration"},
		{fmt.Errorf("wrap: %w", ErrInvalidInput), "invalid_input"},
		{fmt.Errorf("%w: %w", ErrUpstreamFetch, context.DeadlineExceeded), "timeout"},
		{fmt.Errorf("%w: quota", ErrUpstreamFetch), "upstream"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), "err=%v", tt.err)
	}
}
