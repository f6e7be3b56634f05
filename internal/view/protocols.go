package view

import (
	"sort"
	"strings"

	"github.com/protocol-recon/backend/internal/normalize"
	"github.com/protocol-recon/backend/internal/storage/models"
)

// Protocol is a primary row annotated with its match state against the
// latest secondary snapshot.
type Protocol struct {
	Code        string
	Description string
	Tag         string
	Subsystem   string
	Discipline  string
	Status      string
	Cargado     bool
	ErrorSS     bool
}

// ProtocolFilter holds the protocol list filters. Build it with the request
// values, then call Validate before use.
type ProtocolFilter struct {
	Subsystem  string
	Discipline string
	Group      string
	Query      string
	Status     string
	Cargado    bool
	ErrorSS    bool
	SinAconex  bool

	group *models.DisciplineGroup
}

// Validate rejects conflicting match-state flags and unknown groups, and
// resolves the group key against the configured partition.
func (f *ProtocolFilter) Validate(groups []models.DisciplineGroup) error {
	if f.Cargado && f.ErrorSS {
		return invalid("cargado", "cannot be combined with error_ss")
	}
	if f.SinAconex && (f.Cargado || f.ErrorSS) {
		return invalid("sin_aconex", "cannot be combined with cargado or error_ss")
	}

	f.group = nil
	if strings.TrimSpace(f.Group) != "" {
		g, ok := models.FindGroup(groups, f.Group)
		if !ok {
			return invalid("grupo", "unknown group %q", f.Group)
		}
		f.group = &g
	}
	return nil
}

// Matches reports whether p passes every active filter.
func (f *ProtocolFilter) Matches(p Protocol) bool {
	if s := normalize.SubsystemLabel(f.Subsystem); s != "" && p.Subsystem != s {
		return false
	}
	if d := strings.TrimSpace(f.Discipline); d != "" && p.Discipline != d {
		return false
	}
	if f.group != nil && !f.group.Contains(p.Discipline) {
		return false
	}
	if s := normalize.Status(f.Status); s != "" && p.Status != s {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !containsFold(p.Code, q) && !containsFold(p.Description, q) && !containsFold(p.Tag, q) {
			return false
		}
	}
	switch {
	case f.Cargado && !p.Cargado:
		return false
	case f.ErrorSS && !p.ErrorSS:
		return false
	case f.SinAconex && p.Cargado:
		return false
	}
	return true
}

// FilterProtocols keeps the matching protocols, ordered by subsystem then code.
func FilterProtocols(protocols []Protocol, f *ProtocolFilter) []Protocol {
	out := make([]Protocol, 0, len(protocols))
	for _, p := range protocols {
		if f.Matches(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Subsystem != out[j].Subsystem {
			return out[i].Subsystem < out[j].Subsystem
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// ProtocolRow is the protocol log row shape.
type ProtocolRow struct {
	DocumentNo  string `json:"document_no"`
	Rev         string `json:"rev"`
	Descripcion string `json:"descripcion"`
	Tag         string `json:"tag"`
	Subsistema  string `json:"subsistema"`
	Aconex      string `json:"aconex"`
	Status      string `json:"status"`
}

func ShapeProtocol(p Protocol) ProtocolRow {
	tag := strings.TrimSpace(p.Tag)
	if tag == "" {
		tag = "-"
	}
	aconex := ""
	if p.Cargado {
		aconex = "Cargado"
	}
	return ProtocolRow{
		DocumentNo:  strings.TrimSpace(p.Code),
		Rev:         "0",
		Descripcion: strings.TrimSpace(p.Description),
		Tag:         tag,
		Subsistema:  strings.TrimSpace(p.Subsystem),
		Aconex:      aconex,
		Status:      p.Status,
	}
}

func ShapeProtocols(protocols []Protocol) []ProtocolRow {
	rows := make([]ProtocolRow, len(protocols))
	for i, p := range protocols {
		rows[i] = ShapeProtocol(p)
	}
	return rows
}

var ProtocolCSVHeader = []string{"NÚMERO DE DOCUMENTO ACONEX", "REV.", "DESCRIPCIÓN", "TAG", "SUBSISTEMA", "ACONEX", "STATUS"}

func (r ProtocolRow) CSV() []string {
	return []string{r.DocumentNo, r.Rev, r.Descripcion, r.Tag, r.Subsistema, r.Aconex, r.Status}
}

func containsFold(s, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(s), lowerNeedle)
}
