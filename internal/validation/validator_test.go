package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/pagetrail/internal/errors"
	"github.com/pagetrail/pagetrail/internal/validation"
)

type label struct {
	Name string `json:"name" validate:"required"`
}

type payload struct {
	Number int64   `json:"number" validate:"gt=0"`
	State  string  `json:"state,omitempty" validate:"required,oneof=open closed"`
	URL    string  `json:"url" validate:"omitempty,url"`
	Labels []label `json:"labels" validate:"dive"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()
	err := v.Validate(payload{Number: 1, State: "open", URL: "https://api.github.com/x", Labels: []label{{Name: "a"}}})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       payload
		wantField string
		wantMsg   string
	}{
		{name: "non-positive number", req: payload{Number: 0, State: "open"}, wantField: "number", wantMsg: "must be greater than 0"},
		{name: "missing state", req: payload{Number: 1}, wantField: "state", wantMsg: "is required"},
		{name: "unknown state", req: payload{Number: 1, State: "merged"}, wantField: "state", wantMsg: "must be one of: open closed"},
		{name: "bad url", req: payload{Number: 1, State: "open", URL: "not a url"}, wantField: "url", wantMsg: "must be a valid URL"},
		{name: "nested label", req: payload{Number: 1, State: "open", Labels: []label{{}}}, wantField: "labels[0].name", wantMsg: "is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrValidation)

			var coded *errors.Error
			require.True(t, errors.As(err, &coded))
			assert.Contains(t, coded.Message, tt.wantField)
			details, ok := coded.Details.(map[string]string)
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, details[tt.wantField])
		})
	}
}
