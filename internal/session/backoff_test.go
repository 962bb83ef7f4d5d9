package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDurationSchedule(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{5, 480 * time.Second},
		{6, 600 * time.Second},
		{7, 600 * time.Second},
		{20, 600 * time.Second},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, backoffDuration(tt.attempt))
	}
}

func TestBackoffDurationClampsLowAttempt(t *testing.T) {
	assert.Equal(t, 30*time.Second, backoffDuration(0))
	assert.Equal(t, 30*time.Second, backoffDuration(-5))
}
