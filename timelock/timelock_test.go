package timelock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUnlockTime(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.Equal(t, createdAt.Add(168*time.Hour), UnlockTime(createdAt, 168))
	require.Equal(t, createdAt, UnlockTime(createdAt, 0))
}

func TestUnlockTimeClampsNegativeDelay(t *testing.T) {
	createdAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	unlocked := UnlockTime(createdAt, -24)
	require.False(t, unlocked.Before(createdAt))
	require.Equal(t, createdAt, unlocked)
}

func TestElapsed(t *testing.T) {
	unlocksAt := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)

	require.False(t, Elapsed(unlocksAt.Add(-time.Second), unlocksAt))
	require.True(t, Elapsed(unlocksAt, unlocksAt), "boundary instant counts as elapsed")
	require.True(t, Elapsed(unlocksAt.Add(time.Second), unlocksAt))
}
