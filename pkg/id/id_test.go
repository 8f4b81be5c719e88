package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortableAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	prev := ""
	for i := 0; i < 1000; i++ {
		id := New()
		require.Len(t, id, 26)
		assert.False(t, seen[id], "duplicate id %s", id)
		assert.Greater(t, id, prev)
		seen[id] = true
		prev = id
	}
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	got, err := Time(NewAt(at))
	require.NoError(t, err)
	assert.True(t, at.Equal(got))

	_, err = Time("not-a-ulid")
	assert.Error(t, err)
}
