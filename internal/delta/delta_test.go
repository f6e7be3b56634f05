package delta

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/protocol-recon/backend/internal/storage/models"
	"github.com/protocol-recon/backend/internal/view"
)

var testGroups = []models.DisciplineGroup{
	{Key: "obra", Label: "Obra civil", Disciplines: []string{"50", "51", "52", "53", "54"}},
	{Key: "mecanico", Label: "Mecánico Pipping", Disciplines: []string{"55", "56"}},
}

func row(sub, disc, status string) models.PrimaryRecord {
	return models.PrimaryRecord{Code: sub + "-" + status, Subsystem: sub, Discipline: disc, Status: status}
}

type fakeStore struct {
	latest, previous *models.PrimaryLoad
}

func (f *fakeStore) PrimaryGenerations(context.Context) (*models.PrimaryLoad, *models.PrimaryLoad, error) {
	return f.latest, f.previous, nil
}

func load(at time.Time, rows ...models.PrimaryRecord) *models.PrimaryLoad {
	return &models.PrimaryLoad{Snapshot: models.Snapshot{LoadedAt: at}, Rows: rows}
}

func TestCompute(t *testing.T) {
	previous := []models.PrimaryRecord{
		row("5620-S01-003", "56", "ABIERTO"),
		row("5620-S01-003", "56", "ABIERTO"),
		row("5010-C01-001", "50", "CERRADO"),
		row("5030-C01-002", "50", "ABIERTO"),
	}
	latest := []models.PrimaryRecord{
		row("5620-S01-003", "56", "ABIERTO"),
		row("5620-S01-003", "56", "CERRADO"),
		row("5010-C01-001", "50", "CERRADO"),
		row("5110-C01-009", "51", "ABIERTO"),
	}

	changes := Compute(latest, previous, nil)
	require.Len(t, changes, 3)

	assert.Equal(t, "5030-C01-002", changes[0].Subsistema)
	assert.Equal(t, -1, changes[0].DeltaUniverso)
	assert.Equal(t, 0, changes[0].UniversoNew)

	assert.Equal(t, "5110-C01-009", changes[1].Subsistema)
	assert.Equal(t, 1, changes[1].DeltaUniverso)

	assert.Equal(t, Change{
		Subsistema:    "5620-S01-003",
		UniversoPrev:  2,
		UniversoNew:   2,
		AbiertosPrev:  2,
		AbiertosNew:   1,
		DeltaAbiertos: -1,
		CerradosNew:   1,
		DeltaCerrados: 1,
	}, changes[2])

	g, ok := models.FindGroup(testGroups, "mecanico")
	require.True(t, ok)
	filtered := Compute(latest, previous, &g)
	require.Len(t, filtered, 1)
	assert.Equal(t, "5620-S01-003", filtered[0].Subsistema)

	assert.Empty(t, Compute(latest, latest, nil))
	assert.Len(t, changes[2].CSV(), len(CSVHeader))
}

func TestSummaryWithoutPrevious(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	e := NewEngine(&fakeStore{latest: load(now, row("5620-S01-003", "56", "ABIERTO"))}, testGroups, nil)

	sum, err := e.Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.HasPrevious)
	assert.Zero(t, sum.ChangedCount)
	require.NotNil(t, sum.NewLoadedAt)
	assert.Nil(t, sum.PrevLoadedAt)

	changes, err := e.Changes(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, changes)

	sum, err = NewEngine(&fakeStore{}, testGroups, nil).Summary(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.HasPrevious)
	assert.Nil(t, sum.NewLoadedAt)
}

func TestSummaryCountsUnfilteredChanges(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	e := NewEngine(&fakeStore{
		latest:   load(t1, row("A", "56", "CERRADO"), row("B", "50", "ABIERTO")),
		previous: load(t0, row("A", "56", "ABIERTO"), row("C", "57", "ABIERTO")),
	}, testGroups, nil)

	sum, err := e.Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.HasPrevious)
	assert.Equal(t, 3, sum.ChangedCount)
	assert.Equal(t, t1, *sum.NewLoadedAt)
	assert.Equal(t, t0, *sum.PrevLoadedAt)

	changes, err := e.Changes(context.Background(), "obra")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "B", changes[0].Subsistema)
}

func TestChangesUnknownGroup(t *testing.T) {
	e := NewEngine(&fakeStore{}, testGroups, nil)
	_, err := e.Changes(context.Background(), "nope")
	var vErr *view.ValidationError
	assert.ErrorAs(t, err, &vErr)
}
