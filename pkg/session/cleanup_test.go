package session

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanup_RunOnce(t *testing.T) {
	store := newTestStore(t)

	old := New("/tmp", "")
	fresh := New("/tmp", "")
	require.NoError(t, store.Save(old))
	require.NoError(t, store.Save(fresh))

	// Age the first session past the retention window.
	stale := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.path(old.ID), stale, stale))

	c := NewCleanup(store, 24*time.Hour, "")
	removed, err := c.RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{fresh.ID}, ids)
}

func TestCleanup_StartStop(t *testing.T) {
	store := newTestStore(t)

	c := NewCleanup(store, 0, "")
	assert.Equal(t, DefaultRetention, c.retention)
	assert.Equal(t, DefaultCleanupSchedule, c.schedule)

	require.NoError(t, c.Start())
	assert.Error(t, c.Start())

	c.Stop()
	c.Stop()
}

func TestCleanup_InvalidSchedule(t *testing.T) {
	store := newTestStore(t)

	c := NewCleanup(store, time.Hour, "not a schedule")
	assert.Error(t, c.Start())
}
