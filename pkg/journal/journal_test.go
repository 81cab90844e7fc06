package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/sortbot/pkg/kinematics"
	"github.com/gwillem/sortbot/pkg/perception"
	"github.com/gwillem/sortbot/pkg/sequencer"
)

func report(label perception.Label, started time.Time, err error) *sequencer.Report {
	phases := []sequencer.Phase{sequencer.Home, sequencer.Approach, sequencer.Slide, sequencer.Grasp,
		sequencer.Lift, sequencer.Transport, sequencer.Release, sequencer.Return, sequencer.Idle}
	if err != nil {
		phases = []sequencer.Phase{sequencer.Home, sequencer.Approach, sequencer.Aborted, sequencer.Return, sequencer.Idle}
	}
	return &sequencer.Report{
		TaskID:    uuid.New(),
		Target:    perception.Target{Label: label, Position: kinematics.Point(30, 100, -30)},
		Phases:    phases,
		Started:   started,
		Finished:  started.Add(3 * time.Second),
		Waypoints: 20,
		Ticks:     412,
		Err:       err,
	}
}

func TestJournal_RecordAndRecent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)

	ok := report(perception.Green, t0, nil)
	failed := report(perception.Black, t0.Add(time.Minute), errors.New("approach: target out of reach"))
	require.NoError(t, j.Record(ctx, ok))
	require.NoError(t, j.Record(ctx, failed))

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	newest := entries[0]
	assert.Equal(t, failed.TaskID.String(), newest.ID)
	assert.Equal(t, "black", newest.Label)
	assert.False(t, newest.Completed)
	assert.Equal(t, "approach: target out of reach", newest.Error)
	assert.Equal(t, []string{"HOME", "APPROACH", "ABORTED", "RETURN", "IDLE"}, newest.Phases)

	oldest := entries[1]
	assert.True(t, oldest.Completed)
	assert.Equal(t, 412, oldest.Ticks)
	assert.Equal(t, 100.0, oldest.Y)
	assert.True(t, oldest.Started.Equal(t0))
	assert.Equal(t, 3*time.Second, oldest.Finished.Sub(oldest.Started))

	completed, aborted, err := j.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, aborted)
}

func TestJournal_RecentLimit(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	t0 := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(ctx, report(perception.Green, t0.Add(time.Duration(i)*time.Second), nil)))
	}

	entries, err := j.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.True(t, entries[0].Started.After(entries[2].Started))
}

func TestJournal_Empty(t *testing.T) {
	j, err := Open(":memory:")
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	completed, aborted, err := j.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, completed)
	assert.Zero(t, aborted)
}

func TestJournal_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, report(perception.Green, time.Now(), nil)))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
