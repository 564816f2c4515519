package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gatewatch-data/gatewatch/internal/events"
	"github.com/gatewatch-data/gatewatch/internal/vision"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.MigrateUp())
	return database
}

func TestMigrateUp_Idempotent(t *testing.T) {
	database := openTestDB(t)

	// A second run is a no-op.
	require.NoError(t, database.MigrateUp())

	version, dirty, err := database.MigrateVersion()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(2), version)
}

func TestInsertAndFetchEvent(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	ev := events.New(events.TypeCollision, "cam-1",
		time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		vision.Point{X: 320, Y: 240}, 4, 7)
	ev.Metadata["severity"] = "major"
	require.NoError(t, database.InsertEvent(ctx, ev))

	got, err := database.EventByID(ctx, ev.ID)
	require.NoError(t, err)
	require.Equal(t, ev.ID, got.ID)
	require.Equal(t, events.TypeCollision, got.Type)
	require.Equal(t, "cam-1", got.CameraID)
	require.Equal(t, []int64{4, 7}, got.TrackIDs)
	require.Equal(t, ev.Position, got.Position)
	require.Equal(t, "major", got.Metadata["severity"])
	require.True(t, got.Timestamp.Equal(ev.Timestamp))
}

func TestRecentEvents_FilterAndOrder(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ev := events.New(events.TypeLoitering, "cam-1",
			base.Add(time.Duration(i)*time.Minute), vision.Point{}, int64(i))
		require.NoError(t, database.InsertEvent(ctx, ev))
	}
	other := events.New(events.TypeFall, "cam-2", base.Add(10*time.Minute), vision.Point{}, 99)
	require.NoError(t, database.InsertEvent(ctx, other))

	// Newest first, limited.
	got, err := database.RecentEvents(ctx, EventFilter{CameraID: "cam-1", Limit: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []int64{4}, got[0].TrackIDs)
	require.True(t, got[0].Timestamp.After(got[1].Timestamp))

	// Type filter.
	got, err = database.RecentEvents(ctx, EventFilter{Type: events.TypeFall})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "cam-2", got[0].CameraID)

	// Since cutoff.
	got, err = database.RecentEvents(ctx, EventFilter{Since: base.Add(3 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, got, 3) // minutes 3, 4 and the fall at minute 10
}

func TestCountByType(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, database.InsertEvent(ctx,
			events.New(events.TypeCollision, "cam-1", base.Add(time.Duration(i)*time.Minute), vision.Point{})))
	}
	require.NoError(t, database.InsertEvent(ctx,
		events.New(events.TypeWallWriting, "cam-1", base, vision.Point{})))

	counts, err := database.CountByType(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 3, counts[events.TypeCollision])
	require.Equal(t, 1, counts[events.TypeWallWriting])

	counts, err = database.CountByType(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	require.Equal(t, 1, counts[events.TypeCollision])
	require.Zero(t, counts[events.TypeWallWriting])
}

func TestRecentEvents_DefaultLimit(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < DefaultEventLimit+20; i++ {
		ev := events.New(events.TypeInteraction, "cam-1",
			base.Add(time.Duration(i)*time.Second), vision.Point{})
		require.NoError(t, database.InsertEvent(ctx, ev))
	}

	got, err := database.RecentEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, DefaultEventLimit)
}
