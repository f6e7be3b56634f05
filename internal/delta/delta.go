// Package delta compares the two most recent protocol snapshots subsystem by
// subsystem.
package delta

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/protocol-recon/backend/internal/normalize"
	"github.com/protocol-recon/backend/internal/storage/models"
	"github.com/protocol-recon/backend/internal/timing"
	"github.com/protocol-recon/backend/internal/view"
)

// Store supplies the latest and previous primary loads. Either may be nil.
type Store interface {
	PrimaryGenerations(ctx context.Context) (*models.PrimaryLoad, *models.PrimaryLoad, error)
}

type Engine struct {
	store  Store
	groups []models.DisciplineGroup
	obs    timing.Observer
}

func NewEngine(store Store, groups []models.DisciplineGroup, obs timing.Observer) *Engine {
	return &Engine{store: store, groups: groups, obs: timing.OrNop(obs)}
}

type triple struct {
	universo, abiertos, cerrados int
}

// Change is one subsystem whose figures moved between snapshots.
type Change struct {
	Subsistema    string `json:"subsistema"`
	UniversoPrev  int    `json:"universo_prev"`
	UniversoNew   int    `json:"universo_new"`
	DeltaUniverso int    `json:"delta_universo"`
	AbiertosPrev  int    `json:"abiertos_prev"`
	AbiertosNew   int    `json:"abiertos_new"`
	DeltaAbiertos int    `json:"delta_abiertos"`
	CerradosPrev  int    `json:"cerrados_prev"`
	CerradosNew   int    `json:"cerrados_new"`
	DeltaCerrados int    `json:"delta_cerrados"`
}

var CSVHeader = []string{
	"subsistema",
	"universo_prev", "universo_new", "delta_universo",
	"abiertos_prev", "abiertos_new", "delta_abiertos",
	"cerrados_prev", "cerrados_new", "delta_cerrados",
}

func (c Change) CSV() []string {
	return []string{
		c.Subsistema,
		strconv.Itoa(c.UniversoPrev), strconv.Itoa(c.UniversoNew), strconv.Itoa(c.DeltaUniverso),
		strconv.Itoa(c.AbiertosPrev), strconv.Itoa(c.AbiertosNew), strconv.Itoa(c.DeltaAbiertos),
		strconv.Itoa(c.CerradosPrev), strconv.Itoa(c.CerradosNew), strconv.Itoa(c.DeltaCerrados),
	}
}

// Summary describes the last two primary snapshots.
type Summary struct {
	HasPrevious  bool       `json:"has_previous"`
	NewLoadedAt  *time.Time `json:"new_loaded_at"`
	PrevLoadedAt *time.Time `json:"prev_loaded_at"`
	ChangedCount int        `json:"changed_count"`
}

func aggregate(rows []models.PrimaryRecord, group *models.DisciplineGroup) map[string]triple {
	out := map[string]triple{}
	for _, r := range rows {
		if group != nil && !group.Contains(r.Discipline) {
			continue
		}
		t := out[r.Subsystem]
		t.universo++
		switch normalize.Status(r.Status) {
		case models.StatusOpen:
			t.abiertos++
		case models.StatusClosed:
			t.cerrados++
		}
		out[r.Subsystem] = t
	}
	return out
}

// Compute returns one Change per subsystem with a nonzero delta, ordered by
// subsystem. The group filter applies to both snapshots before aggregation.
func Compute(latest, previous []models.PrimaryRecord, group *models.DisciplineGroup) []Change {
	now := aggregate(latest, group)
	before := aggregate(previous, group)

	keys := make([]string, 0, len(now)+len(before))
	for k := range now {
		keys = append(keys, k)
	}
	for k := range before {
		if _, ok := now[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	changes := []Change{}
	for _, k := range keys {
		n, p := now[k], before[k]
		if n == p {
			continue
		}
		changes = append(changes, Change{
			Subsistema:    k,
			UniversoPrev:  p.universo,
			UniversoNew:   n.universo,
			DeltaUniverso: n.universo - p.universo,
			AbiertosPrev:  p.abiertos,
			AbiertosNew:   n.abiertos,
			DeltaAbiertos: n.abiertos - p.abiertos,
			CerradosPrev:  p.cerrados,
			CerradosNew:   n.cerrados,
			DeltaCerrados: n.cerrados - p.cerrados,
		})
	}
	return changes
}

// Changes compares the latest primary snapshot with the previous one. It is
// empty when there is no previous snapshot.
func (e *Engine) Changes(ctx context.Context, group string) (changes []Change, err error) {
	defer timing.Track(e.obs, "subsystem_changes", time.Now(), &err)

	var g *models.DisciplineGroup
	if group != "" {
		found, ok := models.FindGroup(e.groups, group)
		if !ok {
			return nil, &view.ValidationError{Field: "group", Message: fmt.Sprintf("unknown group %q", group)}
		}
		g = &found
	}

	latest, previous, err := e.store.PrimaryGenerations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load primary snapshots: %w", err)
	}
	if latest == nil || previous == nil {
		return []Change{}, nil
	}
	return Compute(latest.Rows, previous.Rows, g), nil
}

func (e *Engine) Summary(ctx context.Context) (sum Summary, err error) {
	defer timing.Track(e.obs, "changes_summary", time.Now(), &err)

	latest, previous, err := e.store.PrimaryGenerations(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load primary snapshots: %w", err)
	}
	if latest != nil {
		at := latest.Snapshot.LoadedAt
		sum.NewLoadedAt = &at
	}
	if latest == nil || previous == nil {
		return sum, nil
	}

	at := previous.Snapshot.LoadedAt
	sum.PrevLoadedAt = &at
	sum.HasPrevious = true
	sum.ChangedCount = len(Compute(latest.Rows, previous.Rows, nil))
	return sum, nil
}
