package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	variants := []string{"A-001", "a001", "  A_001 ", "a - 0 0 1", "A--001__"}
	for _, v := range variants {
		assert.Equal(t, "A001", Code(v), "variant %q", v)
	}

	assert.Equal(t, "", Code(""))
	assert.Equal(t, "", Code("   "))
	assert.Equal(t, "", Code(" - _ "))
	assert.Equal(t, "5620S01003", Code("5620-S01-003"))
}

func TestStrictCode(t *testing.T) {
	assert.Equal(t, "A-001", StrictCode("  a-001 "))
	assert.NotEqual(t, StrictCode("A-001"), StrictCode("A001"))
	assert.Equal(t, "", StrictCode(""))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "A001", Key("a-001", false))
	assert.Equal(t, "A-001", Key("a-001", true))
}

func TestDisciplineCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"56", "56"},
		{"56,0", "56"},
		{"56.0", "56"},
		{" 57 ", "57"},
		{"0", "0"},
		{"99.9", "99"},
		{"57 Construcción - Electricidad", "57"},
		{"Disciplina 05", "5"},
		{"100", ""},
		{"", ""},
		{"   ", ""},
		{"nan", ""},
		{"NAN", ""},
		{"Inf", ""},
		{"no digits here", ""},
		{"123 456", ""},
		{"Ñ57 eléctrica", ""},
		{"Área 57", "57"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DisciplineCode(tt.in))
		})
	}
}

func TestSubsystemCode(t *testing.T) {
	t.Run("embedded code", func(t *testing.T) {
		code, ok := SubsystemCode("Subsistema 5620-s01-003 bombas")
		assert.True(t, ok)
		assert.Equal(t, "5620-S01-003", code)
	})

	t.Run("two char middle segment", func(t *testing.T) {
		code, ok := SubsystemCode("5710-E1-010 - Sala eléctrica")
		assert.True(t, ok)
		assert.Equal(t, "5710-E1-010", code)
	})

	t.Run("first match wins", func(t *testing.T) {
		code, ok := SubsystemCode("5620-S01-003 / 5621-S01-004")
		assert.True(t, ok)
		assert.Equal(t, "5620-S01-003", code)
	})

	t.Run("no pattern", func(t *testing.T) {
		code, ok := SubsystemCode("random text with no pattern")
		assert.False(t, ok)
		assert.Equal(t, "", code)
	})

	t.Run("blank", func(t *testing.T) {
		_, ok := SubsystemCode("")
		assert.False(t, ok)
	})

	t.Run("too many digits", func(t *testing.T) {
		_, ok := SubsystemCode("56201-S01-003")
		assert.False(t, ok)
	})

	t.Run("non ascii letter glued to code", func(t *testing.T) {
		_, ok := SubsystemCode("Ñ5620-S01-003")
		assert.False(t, ok)

		_, ok = SubsystemCode("5620-S01-003é")
		assert.False(t, ok)

		code, ok := SubsystemCode("Ñ 5620-S01-003")
		assert.True(t, ok)
		assert.Equal(t, "5620-S01-003", code)
	})
}

func TestDisciplineFromSubsystem(t *testing.T) {
	code, ok := SubsystemCode("5620-S01-003")
	assert.True(t, ok)
	assert.Equal(t, "56", DisciplineFromSubsystem(code))

	assert.Equal(t, "57", DisciplineFromSubsystem("5710-E01-001 - Sala"))
	assert.Equal(t, "", DisciplineFromSubsystem("sin subsistema"))
	assert.Equal(t, "", DisciplineFromSubsystem(""))
}

func TestSubsystemLabel(t *testing.T) {
	assert.Equal(t, "5620-S01-003", SubsystemLabel(" 5620-s01-003 "))
	assert.Equal(t, "", SubsystemLabel("nan"))
	assert.Equal(t, "", SubsystemLabel("None"))
	assert.Equal(t, "", SubsystemLabel("NULL"))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, "ABIERTO", Status(" abierto "))
	assert.Equal(t, "", Status(""))
}
