package reconcile

import (
	"github.com/protocol-recon/backend/internal/normalize"
	"github.com/protocol-recon/backend/internal/storage/models"
)

type pairKey struct {
	code      string
	subsystem string
}

// matcher indexes the latest secondary snapshot by normalized document
// number. Keys are recomputed from the raw columns; an empty key never
// matches anything.
type matcher struct {
	docs  map[string]struct{}
	pairs map[pairKey]struct{}

	// distinct non-empty secondary subsystem codes seen per document key
	subsystems map[string]map[string]struct{}
}

func newMatcher(secondary *models.SecondaryLoad) *matcher {
	m := &matcher{
		docs:       map[string]struct{}{},
		pairs:      map[pairKey]struct{}{},
		subsystems: map[string]map[string]struct{}{},
	}
	if secondary == nil {
		return m
	}
	for _, r := range secondary.Rows {
		doc := normalize.Code(r.DocumentNo)
		if doc == "" {
			continue
		}
		m.docs[doc] = struct{}{}

		sub := normalize.Code(r.SubsystemCode)
		if sub == "" {
			continue
		}
		m.pairs[pairKey{doc, sub}] = struct{}{}

		seen, ok := m.subsystems[doc]
		if !ok {
			seen = map[string]struct{}{}
			m.subsystems[doc] = seen
		}
		seen[normalize.StrictCode(r.SubsystemCode)] = struct{}{}
	}
	return m
}

// codeMatch reports a code-only match for a primary code.
func (m *matcher) codeMatch(code string) bool {
	key := normalize.Code(code)
	if key == "" {
		return false
	}
	_, ok := m.docs[key]
	return ok
}

// codeSubsystemMatch additionally requires the subsystem to agree. Both
// subsystems go through the code normalizer.
func (m *matcher) codeSubsystemMatch(code, subsystem string) bool {
	key := normalize.Code(code)
	sub := normalize.Code(subsystem)
	if key == "" || sub == "" {
		return false
	}
	_, ok := m.pairs[pairKey{key, sub}]
	return ok
}

// ssError is a code-only match with no code+subsystem match.
func (m *matcher) ssError(code, subsystem string) bool {
	return m.codeMatch(code) && !m.codeSubsystemMatch(code, subsystem)
}

// primaryKeys is the set of non-empty primary codes under the chosen key.
func primaryKeys(primary *models.PrimaryLoad, strict bool) map[string]struct{} {
	keys := map[string]struct{}{}
	if primary == nil {
		return keys
	}
	for _, r := range primary.Rows {
		if k := normalize.Key(r.Code, strict); k != "" {
			keys[k] = struct{}{}
		}
	}
	return keys
}
