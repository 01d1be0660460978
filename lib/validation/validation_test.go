package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePrompt(t *testing.T) {
	assert.NoError(t, ValidatePrompt("something scary on Netflix"))
	assert.NoError(t, ValidatePrompt(strings.Repeat("a", MaxPromptLength)))

	assert.Error(t, ValidatePrompt(""))
	assert.Error(t, ValidatePrompt("   \n\t  "))
	assert.Error(t, ValidatePrompt(strings.Repeat("a", MaxPromptLength+1)))
	assert.Error(t, ValidatePrompt("bad \xff encoding"))
}

func TestValidateTitleList(t *testing.T) {
	accepted := []struct {
		name  string
		input string
	}{
		{"plain list", `[
			{"title": "The Fault in Our Stars", "year": 2014},
			{"title": "Me and Earl and the Dying Girl", "year": 2015}
		]`},
		{"empty list", `[]`},
		{"extra keys", `[{"title": "Heat", "year": 1995, "why": "classic"}]`},
	}
	for _, tt := range accepted {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, ValidateTitleList([]byte(tt.input)))
		})
	}

	rejected := []struct {
		name  string
		input string
	}{
		{"missing year", `[{"title": "Heat"}]`},
		{"missing title", `[{"year": 1995}]`},
		{"empty title", `[{"title": "", "year": 1995}]`},
		{"year as string", `[{"title": "Heat", "year": "1995"}]`},
		{"object instead of array", `{"title": "Heat", "year": 1995}`},
		{"implausible year", `[{"title": "Heat", "year": 12}]`},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, ValidateTitleList([]byte(tt.input)))
		})
	}
}
