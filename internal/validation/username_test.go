package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
		errMsg   string
	}{
		{name: "valid simple", username: "alice"},
		{name: "valid with digits", username: "alice123"},
		{name: "valid digits only", username: "123456"},
		{name: "valid with underscore", username: "alice_the_first"},
		{name: "valid minimum length", username: "abc"},
		{name: "valid maximum length", username: strings.Repeat("a", 32)},
		{
			name:     "empty",
			username: "",
			wantErr:  true,
			errMsg:   "cannot be empty",
		},
		{
			name:     "too short",
			username: "ab",
			wantErr:  true,
			errMsg:   "at least 3 characters",
		},
		{
			name:     "too long",
			username: strings.Repeat("a", 33),
			wantErr:  true,
			errMsg:   "not exceed 32",
		},
		{
			name:     "spaces",
			username: "alice smith",
			wantErr:  true,
			errMsg:   "can only contain",
		},
		{
			name:     "punctuation",
			username: "alice@example",
			wantErr:  true,
			errMsg:   "can only contain",
		},
		{
			name:     "cyrillic",
			username: "алиса",
			wantErr:  true,
			errMsg:   "can only contain",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
