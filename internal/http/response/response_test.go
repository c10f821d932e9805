package response

import (
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email string `validate:"required,email"`
	Image string `validate:"required,base64"`
	Mime  string `validate:"omitempty,oneof=image/png image/jpeg"`
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name  string
		input sample
		want  string
	}{
		{
			name:  "required",
			input: sample{Image: "aGk="},
			want:  "field Email is a required field",
		},
		{
			name:  "email",
			input: sample{Email: "nope", Image: "aGk="},
			want:  "field Email must be a valid email",
		},
		{
			name:  "base64",
			input: sample{Email: "a@x.com", Image: "%%%"},
			want:  "field Image must be base64 encoded",
		},
		{
			name:  "oneof",
			input: sample{Email: "a@x.com", Image: "aGk=", Mime: "text/plain"},
			want:  "field Mime must be one of [image/png image/jpeg]",
		},
	}

	v := validator.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.input)
			require.Error(t, err)

			resp := ValidationError(err.(validator.ValidationErrors))
			assert.Equal(t, StatusError, resp.Status)
			assert.Equal(t, tt.want, resp.Error)
		})
	}
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, Response{Status: StatusOK}, OK())
	assert.Equal(t, Response{Status: StatusOK, Data: 1}, OKWithData(1))
	assert.Equal(t, Response{Status: StatusError, Error: "boom"}, Error("boom"))
	assert.Equal(t, Response{Status: StatusError, Error: "boom", Data: 2}, ErrorWithData("boom", 2))
}
