package reconcile

import (
	"sort"
	"strings"

	"github.com/protocol-recon/backend/internal/normalize"
	"github.com/protocol-recon/backend/internal/storage/models"
	"github.com/protocol-recon/backend/internal/view"
)

// Annotate attaches the match state of every primary row.
func Annotate(primary *models.PrimaryLoad, secondary *models.SecondaryLoad) []view.Protocol {
	if primary == nil {
		return nil
	}
	m := newMatcher(secondary)

	out := make([]view.Protocol, len(primary.Rows))
	for i, r := range primary.Rows {
		cargado := m.codeMatch(r.Code)
		out[i] = view.Protocol{
			Code:        r.Code,
			Description: r.Description,
			Tag:         r.Tag,
			Subsystem:   r.Subsystem,
			Discipline:  r.Discipline,
			Status:      normalize.Status(r.Status),
			Cargado:     cargado,
			ErrorSS:     cargado && !m.codeSubsystemMatch(r.Code, r.Subsystem),
		}
	}
	return out
}

// SSErrorRow is a protocol filed under a subsystem no matching transmittal
// agrees with, plus the subsystems the transmittals do carry.
type SSErrorRow struct {
	DocumentNo        string   `json:"document_no"`
	Descripcion       string   `json:"descripcion"`
	Tag               string   `json:"tag"`
	Disciplina        string   `json:"disciplina"`
	Status            string   `json:"status"`
	SubsistemaApsa    string   `json:"subsistema_apsa"`
	SubsistemasAconex []string `json:"subsistemas_aconex"`
}

var SSErrorsCSVHeader = []string{"document_no", "descripcion", "tag", "disciplina", "status", "subsistema_apsa", "subsistemas_aconex"}

func (r SSErrorRow) CSV() []string {
	return []string{r.DocumentNo, r.Descripcion, r.Tag, r.Disciplina, r.Status, r.SubsistemaApsa, strings.Join(r.SubsistemasAconex, " | ")}
}

// SSErrors lists the SS-error rows ordered by subsystem then code. Empty when
// either snapshot is missing.
func SSErrors(primary *models.PrimaryLoad, secondary *models.SecondaryLoad) []SSErrorRow {
	rows := []SSErrorRow{}
	if primary == nil || secondary == nil {
		return rows
	}
	m := newMatcher(secondary)

	for _, r := range primary.Rows {
		if !m.ssError(r.Code, r.Subsystem) {
			continue
		}
		seen := m.subsystems[normalize.Code(r.Code)]
		subs := make([]string, 0, len(seen))
		for s := range seen {
			subs = append(subs, s)
		}
		sort.Strings(subs)

		rows = append(rows, SSErrorRow{
			DocumentNo:        strings.TrimSpace(r.Code),
			Descripcion:       strings.TrimSpace(r.Description),
			Tag:               strings.TrimSpace(r.Tag),
			Disciplina:        r.Discipline,
			Status:            normalize.Status(r.Status),
			SubsistemaApsa:    r.Subsystem,
			SubsistemasAconex: subs,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SubsistemaApsa != rows[j].SubsistemaApsa {
			return rows[i].SubsistemaApsa < rows[j].SubsistemaApsa
		}
		return rows[i].DocumentNo < rows[j].DocumentNo
	})
	return rows
}

// Options are the distinct non-empty filter values of the latest primary
// snapshot.
type Options struct {
	Disciplinas []string `json:"disciplinas"`
	Subsistemas []string `json:"subsistemas"`
}

func ProtocolOptions(primary *models.PrimaryLoad) Options {
	opts := Options{Disciplinas: []string{}, Subsistemas: []string{}}
	if primary == nil {
		return opts
	}

	discs := map[string]struct{}{}
	subs := map[string]struct{}{}
	for _, r := range primary.Rows {
		if d := strings.TrimSpace(r.Discipline); d != "" {
			discs[d] = struct{}{}
		}
		if s := strings.TrimSpace(r.Subsystem); s != "" {
			subs[s] = struct{}{}
		}
	}
	for d := range discs {
		opts.Disciplinas = append(opts.Disciplinas, d)
	}
	for s := range subs {
		opts.Subsistemas = append(opts.Subsistemas, s)
	}
	sort.Strings(opts.Disciplinas)
	sort.Strings(opts.Subsistemas)
	return opts
}
