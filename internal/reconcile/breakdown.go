package reconcile

import (
	"sort"

	"github.com/protocol-recon/backend/internal/normalize"
	"github.com/protocol-recon/backend/internal/storage/models"
)

// Counts is the per-bucket breakdown. Universo counts every row in the
// bucket whatever its status; Aconex counts distinct normalized codes with
// a code-only match.
type Counts struct {
	Universo int `json:"universo"`
	Abiertos int `json:"abiertos"`
	Cerrados int `json:"cerrados"`
	Aconex   int `json:"aconex"`
}

type DisciplineRow struct {
	Disciplina string `json:"disciplina"`
	Counts
}

type GroupRow struct {
	Key   string `json:"key"`
	Grupo string `json:"grupo"`
	Counts
}

type SubsystemRow struct {
	Subsistema      string `json:"subsistema"`
	Universo        int    `json:"universo"`
	Abiertos        int    `json:"abiertos"`
	Cerrados        int    `json:"cerrados"`
	PendienteCierre int    `json:"pendiente_cierre"`
	CargadoAconex   int    `json:"cargado_aconex"`
	PendienteAconex int    `json:"pendiente_aconex"`
}

// bucket accumulates counts for one grouping key.
type bucket struct {
	universo, abiertos, cerrados int
	matched                      map[string]struct{}
}

func (b *bucket) add(r models.PrimaryRecord, m *matcher) {
	b.universo++
	switch normalize.Status(r.Status) {
	case models.StatusOpen:
		b.abiertos++
	case models.StatusClosed:
		b.cerrados++
	}
	if m.codeMatch(r.Code) {
		if b.matched == nil {
			b.matched = map[string]struct{}{}
		}
		b.matched[normalize.Code(r.Code)] = struct{}{}
	}
}

func (b *bucket) counts() Counts {
	return Counts{Universo: b.universo, Abiertos: b.abiertos, Cerrados: b.cerrados, Aconex: len(b.matched)}
}

// DisciplineBreakdown reports one row per discipline code 50..59. It is
// empty without a primary snapshot.
func DisciplineBreakdown(primary *models.PrimaryLoad, secondary *models.SecondaryLoad) []DisciplineRow {
	if primary == nil {
		return []DisciplineRow{}
	}
	m := newMatcher(secondary)

	buckets := map[string]*bucket{}
	for _, d := range models.Disciplines {
		buckets[d] = &bucket{}
	}
	for _, r := range primary.Rows {
		if b, ok := buckets[r.Discipline]; ok {
			b.add(r, m)
		}
	}

	rows := make([]DisciplineRow, 0, len(models.Disciplines))
	for _, d := range models.Disciplines {
		rows = append(rows, DisciplineRow{Disciplina: d, Counts: buckets[d].counts()})
	}
	return rows
}

// GroupBreakdown reports one row per configured discipline group, in
// configuration order.
func GroupBreakdown(primary *models.PrimaryLoad, secondary *models.SecondaryLoad, groups []models.DisciplineGroup) []GroupRow {
	if primary == nil {
		return []GroupRow{}
	}
	m := newMatcher(secondary)

	buckets := make([]bucket, len(groups))
	for _, r := range primary.Rows {
		for i, g := range groups {
			if g.Contains(r.Discipline) {
				buckets[i].add(r, m)
			}
		}
	}

	rows := make([]GroupRow, len(groups))
	for i, g := range groups {
		rows[i] = GroupRow{Key: g.Key, Grupo: g.Label, Counts: buckets[i].counts()}
	}
	return rows
}

// PendingAconex is the registry count still missing a transmittal, floored
// at zero.
func PendingAconex(universo, cerrados, cargado int, formula PendingFormula) int {
	base := universo
	if formula == PendingClosed {
		base = cerrados
	}
	return floor0(base - cargado)
}

// SubsystemBreakdown reports one row per distinct subsystem value, optionally
// restricted to a discipline group, sorted by pendiente_aconex descending and
// then subsystem ascending.
func SubsystemBreakdown(primary *models.PrimaryLoad, secondary *models.SecondaryLoad, group *models.DisciplineGroup, formula PendingFormula) []SubsystemRow {
	if primary == nil {
		return []SubsystemRow{}
	}
	m := newMatcher(secondary)

	buckets := map[string]*bucket{}
	for _, r := range primary.Rows {
		if group != nil && !group.Contains(r.Discipline) {
			continue
		}
		b, ok := buckets[r.Subsystem]
		if !ok {
			b = &bucket{}
			buckets[r.Subsystem] = b
		}
		b.add(r, m)
	}

	rows := make([]SubsystemRow, 0, len(buckets))
	for sub, b := range buckets {
		c := b.counts()
		rows = append(rows, SubsystemRow{
			Subsistema:      sub,
			Universo:        c.Universo,
			Abiertos:        c.Abiertos,
			Cerrados:        c.Cerrados,
			PendienteCierre: c.Abiertos,
			CargadoAconex:   c.Aconex,
			PendienteAconex: PendingAconex(c.Universo, c.Cerrados, c.Aconex, formula),
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PendienteAconex != rows[j].PendienteAconex {
			return rows[i].PendienteAconex > rows[j].PendienteAconex
		}
		return rows[i].Subsistema < rows[j].Subsistema
	})
	return rows
}
