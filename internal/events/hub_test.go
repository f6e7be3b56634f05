package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcast(t *testing.T) {
	h := NewHub(4)
	_, a, cancelA := h.Subscribe()
	_, b, cancelB := h.Subscribe()
	defer cancelB()
	assert.Equal(t, 2, h.Clients())

	e := New(TypeSnapshotCreated, "APSA")
	e.SnapshotID = 7
	h.Publish(e)

	got := <-a
	assert.Equal(t, int64(7), got.SnapshotID)
	got = <-b
	assert.Equal(t, TypeSnapshotCreated, got.Type)
	assert.NotEmpty(t, got.ID)

	cancelA()
	cancelA()
	assert.Equal(t, 1, h.Clients())
	_, open := <-a
	assert.False(t, open)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub(1)
	_, ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(New(TypeSnapshotCreated, "APSA"))
	h.Publish(New(TypeSnapshotsPurged, "APSA"))

	first := <-ch
	require.Equal(t, TypeSnapshotCreated, first.Type)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %v", e)
	default:
	}
}
