package reconcile

import (
	"github.com/protocol-recon/backend/internal/normalize"
	"github.com/protocol-recon/backend/internal/storage/models"
)

// Cards are the global dashboard figures.
type Cards struct {
	Universo  int `json:"universo"`
	Abiertos  int `json:"abiertos"`
	Cerrados  int `json:"cerrados"`
	TotalApsa int `json:"total_apsa"`

	AconexCargados   int `json:"aconex_cargados"`
	AconexUnicos     int `json:"aconex_unicos"`
	AconexValidos    int `json:"aconex_validos"`
	AconexInvalidos  int `json:"aconex_invalidos"`
	AconexDuplicados int `json:"aconex_duplicados"`
	AconexErrorSS    int `json:"aconex_error_ss"`
	AconexValidosSS  int `json:"aconex_validos_ss"`
}

// ComputeCards derives the global figures. A missing snapshot contributes
// zeros.
func ComputeCards(primary *models.PrimaryLoad, secondary *models.SecondaryLoad) Cards {
	var c Cards

	if primary != nil {
		c.TotalApsa = len(primary.Rows)
		for _, r := range primary.Rows {
			switch normalize.Status(r.Status) {
			case models.StatusOpen:
				c.Abiertos++
			case models.StatusClosed:
				c.Cerrados++
			}
		}
		c.Universo = c.Abiertos + c.Cerrados
	}

	if secondary == nil {
		return c
	}

	c.AconexCargados = len(secondary.Rows)

	codes := primaryKeys(primary, false)
	pairs := map[pairKey]struct{}{}
	if primary != nil {
		for _, r := range primary.Rows {
			code, sub := normalize.Code(r.Code), normalize.Code(r.Subsystem)
			if code != "" && sub != "" {
				pairs[pairKey{code, sub}] = struct{}{}
			}
		}
	}

	unique := map[string]struct{}{}
	valid := map[string]struct{}{}
	validSS := map[string]struct{}{}
	for _, r := range secondary.Rows {
		doc := normalize.Code(r.DocumentNo)
		unique[doc] = struct{}{}
		if doc == "" {
			continue
		}
		if _, ok := codes[doc]; ok {
			valid[doc] = struct{}{}
		}
		if _, ok := pairs[pairKey{doc, normalize.Code(r.SubsystemCode)}]; ok {
			validSS[doc] = struct{}{}
		}
	}

	c.AconexUnicos = len(unique)
	c.AconexValidos = len(valid)
	c.AconexValidosSS = len(validSS)
	c.AconexInvalidos = floor0(c.AconexUnicos - c.AconexValidos)
	c.AconexDuplicados = floor0(c.AconexCargados - c.AconexUnicos)

	if primary != nil {
		m := newMatcher(secondary)
		for _, r := range primary.Rows {
			if m.ssError(r.Code, r.Subsystem) {
				c.AconexErrorSS++
			}
		}
	}
	return c
}

func floor0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
