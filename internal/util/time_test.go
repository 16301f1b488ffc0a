package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0 seconds"},
		{-time.Minute, "0 seconds"},
		{500 * time.Millisecond, "1 second"},
		{42 * time.Second, "42 seconds"},
		{20 * time.Minute, "20 minutes"},
		{19*time.Minute + 5*time.Second, "19 minutes 5 seconds"},
		{time.Hour, "1 hour"},
		{time.Hour + 30*time.Second, "1 hour"},
		{2*time.Hour + 5*time.Minute + 9*time.Second, "2 hours 5 minutes"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatRemaining(tt.in), "duration %s", tt.in)
	}
}
