package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protocol-recon/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(filepath.Join(t.TempDir(), "recon.db"))
	require.NoError(t, err)
	require.NoError(t, c.InitSchema())
	t.Cleanup(func() { c.Close() })

	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return c
}

func primaryRowsFixture() []models.PrimaryRecord {
	return []models.PrimaryRecord{
		{Code: "A-001", Subsystem: "5620-S01-003", Discipline: "56", Status: "ABIERTO"},
		{Code: "A-002", Subsystem: "5620-S01-003", Discipline: "56", Status: "CERRADO"},
	}
}

func TestSnapshotRetention(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	latest, err := c.LatestSnapshot(ctx, models.SourcePrimary)
	require.NoError(t, err)
	assert.Nil(t, latest)

	first, err := c.CreatePrimarySnapshot(ctx, "one.xlsx", "h1", primaryRowsFixture())
	require.NoError(t, err)

	latest, err = c.LatestSnapshot(ctx, models.SourcePrimary)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, first.ID, latest.ID)

	prev, err := c.PreviousSnapshot(ctx, models.SourcePrimary)
	require.NoError(t, err)
	assert.Nil(t, prev)

	second, err := c.CreatePrimarySnapshot(ctx, "two.xlsx", "h2", primaryRowsFixture())
	require.NoError(t, err)
	_, err = c.PurgeOld(ctx, models.SourcePrimary, 2)
	require.NoError(t, err)

	prev, err = c.PreviousSnapshot(ctx, models.SourcePrimary)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, first.ID, prev.ID)

	third, err := c.CreatePrimarySnapshot(ctx, "three.xlsx", "h3", primaryRowsFixture())
	require.NoError(t, err)
	purged, err := c.PurgeOld(ctx, models.SourcePrimary, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	snaps, err := c.ListSnapshots(ctx, models.SourcePrimary)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, third.ID, snaps[0].ID)
	assert.Equal(t, second.ID, snaps[1].ID)

	var orphans int
	require.NoError(t, c.db.QueryRow(`SELECT COUNT(*) FROM primary_records WHERE snapshot_id = ?`, first.ID).Scan(&orphans))
	assert.Zero(t, orphans)
}

func TestOrderingTieBreaksOnID(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	fixed := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	a, err := c.CreatePrimarySnapshot(ctx, "a.xlsx", "ha", nil)
	require.NoError(t, err)
	b, err := c.CreatePrimarySnapshot(ctx, "b.xlsx", "hb", nil)
	require.NoError(t, err)

	latest, err := c.LatestSnapshot(ctx, models.SourcePrimary)
	require.NoError(t, err)
	assert.Equal(t, b.ID, latest.ID)

	prev, err := c.PreviousSnapshot(ctx, models.SourcePrimary)
	require.NoError(t, err)
	assert.Equal(t, a.ID, prev.ID)
}

func TestSourcesAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.CreatePrimarySnapshot(ctx, "apsa.xlsx", "h1", primaryRowsFixture())
	require.NoError(t, err)
	_, err = c.CreateSecondarySnapshot(ctx, "aconex.xlsx", "h2", []models.SecondaryRecord{
		{DocumentNo: "a001", SubsystemCode: "5621-S01-003"},
	})
	require.NoError(t, err)

	deleted, err := c.PurgeAll(ctx, models.SourceSecondary)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	latest, err := c.LatestSnapshot(ctx, models.SourcePrimary)
	require.NoError(t, err)
	assert.NotNil(t, latest)

	latest, err = c.LatestSnapshot(ctx, models.SourceSecondary)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestCreateSnapshotRollsBackOnOversizedValue(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	rows := primaryRowsFixture()
	rows = append(rows, models.PrimaryRecord{Code: strings.Repeat("X", 121)})

	_, err := c.CreatePrimarySnapshot(ctx, "bad.xlsx", "h", rows)
	require.Error(t, err)

	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, "code", dataErr.Field)
	assert.Equal(t, 3, dataErr.Row)
	assert.Equal(t, 120, dataErr.Limit)

	snaps, err := c.ListSnapshots(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestLatestLoadsAndGenerations(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	primary, secondary, err := c.LatestLoads(ctx)
	require.NoError(t, err)
	assert.Nil(t, primary)
	assert.Nil(t, secondary)

	_, err = c.CreatePrimarySnapshot(ctx, "one.xlsx", "h1", primaryRowsFixture()[:1])
	require.NoError(t, err)
	_, err = c.CreatePrimarySnapshot(ctx, "two.xlsx", "h2", primaryRowsFixture())
	require.NoError(t, err)
	_, err = c.CreateSecondarySnapshot(ctx, "aconex.xlsx", "h3", []models.SecondaryRecord{
		{DocumentNo: "a 001", SubsystemCode: "5621-s01-003"},
	})
	require.NoError(t, err)

	primary, secondary, err = c.LatestLoads(ctx)
	require.NoError(t, err)
	require.NotNil(t, primary)
	require.NotNil(t, secondary)
	assert.Len(t, primary.Rows, 2)
	assert.Equal(t, "A001", primary.Rows[0].CodeNorm)
	assert.Equal(t, "5620S01003", primary.Rows[0].SubsystemNorm)
	require.Len(t, secondary.Rows, 1)
	assert.Equal(t, "A001", secondary.Rows[0].DocumentNoNorm)
	assert.Equal(t, "5621S01003", secondary.Rows[0].SubsystemCodeNorm)

	latest, previous, err := c.PrimaryGenerations(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.NotNil(t, previous)
	assert.Len(t, latest.Rows, 2)
	assert.Len(t, previous.Rows, 1)
	assert.True(t, latest.Snapshot.LoadedAt.After(previous.Snapshot.LoadedAt))
}

func TestFindByHash(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	snap, err := c.FindByHash(ctx, models.SourcePrimary, "abc")
	require.NoError(t, err)
	assert.Nil(t, snap)

	created, err := c.CreatePrimarySnapshot(ctx, "one.xlsx", "abc", nil)
	require.NoError(t, err)

	snap, err = c.FindByHash(ctx, models.SourcePrimary, "abc")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, created.ID, snap.ID)

	snap, err = c.FindByHash(ctx, models.SourceSecondary, "abc")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestPurgeOldRejectsZeroKeep(t *testing.T) {
	c := newTestClient(t)
	_, err := c.PurgeOld(context.Background(), models.SourcePrimary, 0)
	assert.Error(t, err)
}

func TestReplaceSnapshot(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	first, err := c.CreateSecondarySnapshot(ctx, "one.xlsx", "h1", []models.SecondaryRecord{{DocumentNo: "A-001"}})
	require.NoError(t, err)

	_, _, err = c.ReplaceSecondarySnapshot(ctx, "bad.xlsx", "h2", []models.SecondaryRecord{{DocumentNo: strings.Repeat("D", 200)}})
	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)

	snaps, err := c.ListSnapshots(ctx, models.SourceSecondary)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, first.ID, snaps[0].ID)

	_, err = c.CreatePrimarySnapshot(ctx, "apsa.xlsx", "h3", primaryRowsFixture())
	require.NoError(t, err)

	replaced, deleted, err := c.ReplaceSecondarySnapshot(ctx, "two.xlsx", "h4", []models.SecondaryRecord{{DocumentNo: "A-002"}})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	snaps, err = c.ListSnapshots(ctx, models.SourceSecondary)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, replaced.ID, snaps[0].ID)

	var orphans int
	require.NoError(t, c.db.QueryRow(`SELECT COUNT(*) FROM secondary_records WHERE snapshot_id = ?`, first.ID).Scan(&orphans))
	assert.Zero(t, orphans)

	primary, err := c.LatestSnapshot(ctx, models.SourcePrimary)
	require.NoError(t, err)
	assert.NotNil(t, primary)
}
