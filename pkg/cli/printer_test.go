package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func init() {
	color.NoColor = true
}

func TestHumanDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       time.Duration
		expected string
	}{
		{0, "0.0s"},
		{1500 * time.Millisecond, "1.5s"},
		{59 * time.Second, "59.0s"},
		{3 * time.Minute, "3 minutes"},
		{2 * time.Hour, "2 hours"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, HumanDuration(tt.in))
	}
}

func TestPrinter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintAgentName("weather")
	p.PrintError(errors.New("agent server unreachable"))
	p.PrintDuration(2 * time.Second)

	assert.Equal(t, "\n--- Agent: weather ---\n❌ agent server unreachable\n(answered in 2.0s)\n", buf.String())
}
