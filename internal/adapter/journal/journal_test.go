package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slate-core/internal/domain"
	"slate-core/internal/infra/logger"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "lifecycle.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func event(agent string, from, to domain.AgentState, at time.Time) domain.LifecycleEvent {
	return domain.LifecycleEvent{AgentID: agent, From: from, To: to, At: at}
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	j.Record(event("ALPHA", domain.StateUnloaded, domain.StateLoading, base))
	j.Record(event("ALPHA", domain.StateLoading, domain.StateActive, base.Add(time.Second)))
	j.Record(event("BETA", domain.StateUnloaded, domain.StateLoading, base.Add(2*time.Second)))

	entries, err := j.Recent("", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "BETA", entries[0].AgentID, "most recent first")
	assert.Equal(t, domain.StateActive, entries[1].To)
	assert.True(t, entries[0].At.After(entries[2].At))
}

func TestRecentFiltersByAgent(t *testing.T) {
	j := openTestJournal(t)
	now := time.Now().UTC()
	j.Record(event("ALPHA", domain.StateUnloaded, domain.StateLoading, now))
	j.Record(event("BETA", domain.StateUnloaded, domain.StateLoading, now.Add(time.Second)))

	entries, err := j.Recent("ALPHA", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ALPHA", entries[0].AgentID)
}

func TestRecentHonorsLimit(t *testing.T) {
	j := openTestJournal(t)
	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		j.Record(event("ALPHA", domain.StateActive, domain.StateDegraded,
			now.Add(time.Duration(i)*time.Second)))
	}

	entries, err := j.Recent("", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestRecordSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lifecycle.db")
	j, err := Open(path, logger.Discard())
	require.NoError(t, err)
	j.Record(event("ALPHA", domain.StateUnloaded, domain.StateLoading, time.Now().UTC()))
	require.NoError(t, j.Close())

	j2, err := Open(path, logger.Discard())
	require.NoError(t, err)
	defer j2.Close()

	entries, err := j2.Recent("", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecordZeroTimeDefaultsToNow(t *testing.T) {
	j := openTestJournal(t)
	j.Record(domain.LifecycleEvent{
		AgentID: "ALPHA",
		From:    domain.StateUnloaded,
		To:      domain.StateLoading,
	})

	entries, err := j.Recent("ALPHA", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.WithinDuration(t, time.Now().UTC(), entries[0].At, time.Minute)
}
