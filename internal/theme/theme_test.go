package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionStyle(t *testing.T) {
	tests := []struct {
		action string
		want   any
	}{
		{"created", ColorGreen},
		{"updated", ColorBlue},
		{"skipped", ColorYellow},
		{"failed", ColorRed},
		{"", ColorGray},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, ActionStyle(tt.action).GetForeground())
			assert.True(t, ActionStyle(tt.action).GetBold())
		})
	}
}

func TestOutcomeStyle(t *testing.T) {
	assert.Equal(t, ColorGreen, OutcomeStyle(true).GetForeground())
	assert.Equal(t, ColorRed, OutcomeStyle(false).GetForeground())
}
