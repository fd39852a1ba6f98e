package eventsources

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffWait(t *testing.T) {
	b := DefaultBackoff()

	cases := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second},
		{10, 60 * time.Second},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.expected, b.Wait(tc.attempt), "attempt %d", tc.attempt)
	}
}
