package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := Configf("missing %s", "GITHUB_TOKEN")

	assert.True(t, Is(err, ErrConfig))
	assert.False(t, Is(err, ErrUpstream))
	assert.Equal(t, "missing GITHUB_TOKEN", err.Error())
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(cause, CodeUpstream, "fetch issue")

	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, cause, Unwrap(err))
	assert.Equal(t, "fetch issue: connection refused", err.Error())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "config", err: Config("bad"), want: 2},
		{name: "validation", err: Validation("bad"), want: 3},
		{name: "upstream wrapped", err: fmt.Errorf("run: %w", Wrap(fmt.Errorf("x"), CodeUpstream, "get")), want: 4},
		{name: "plain", err: fmt.Errorf("boom"), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestWithDetails(t *testing.T) {
	err := ValidationWithDetails("payload invalid", map[string]string{"title": "is required"})
	assert.Equal(t, map[string]string{"title": "is required"}, err.Details)
	assert.ErrorIs(t, err, ErrValidation)
}
