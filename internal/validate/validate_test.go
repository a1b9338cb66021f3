package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unilib/internal/apperr"
)

func TestStructReportsJSONFieldNames(t *testing.T) {
	type input struct {
		Email string `json:"email" validate:"required,email"`
		Color string `json:"color" validate:"omitempty,rgbhex"`
		Nom   string `json:"nom" validate:"required"`
	}

	require.NoError(t, Struct(input{Email: "a@b.cm", Color: "#4CAF50", Nom: "Ngono"}))
	require.NoError(t, Struct(input{Email: "a@b.cm", Nom: "Ngono"}))

	err := Struct(input{Email: "nope", Color: "red"})
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindInvalid, appErr.Kind)
	assert.Equal(t, "must be a valid email address", appErr.Fields["email"])
	assert.Equal(t, "must be a hex color like #4CAF50", appErr.Fields["color"])
	assert.Equal(t, "is required", appErr.Fields["nom"])
}

func TestStructRejectsShortHexColors(t *testing.T) {
	type input struct {
		Color string `json:"color" validate:"rgbhex"`
	}
	assert.Error(t, Struct(input{Color: "#FFF"}))
	assert.Error(t, Struct(input{Color: "4CAF50"}))
	assert.NoError(t, Struct(input{Color: "#a1b2c3"}))
}
