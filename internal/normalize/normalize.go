// Package normalize turns raw identifiers from the protocol registry and the
// transmittal log into comparison keys. Every cross-source comparison goes
// through these functions; callers must not build keys any other way.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// RE2's \b only knows ASCII word characters; these bound a match on any
// letter, digit or underscore so "Ñ5620-S01-003" holds no code.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

var (
	subsystemPattern         = regexp.MustCompile(wordStart + `(\d{4}-[A-Z0-9]{2,3}-\d{3})` + wordEnd)
	subsystemPatternAnchored = regexp.MustCompile(`^\d{4}-[A-Z0-9]{2,3}-\d{3}$`)
	twoDigitRun              = regexp.MustCompile(wordStart + `(\d{2})` + wordEnd)
	subsystemDiscipline      = regexp.MustCompile(`^(\d{2})\d{2}-`)

	separatorStripper = strings.NewReplacer(" ", "", "-", "", "_", "")
)

// Code is the default comparison key: uppercase, trimmed, with spaces,
// hyphens and underscores removed.
func Code(raw string) string {
	return separatorStripper.Replace(strings.ToUpper(strings.TrimSpace(raw)))
}

// StrictCode only uppercases and trims, keeping separators.
func StrictCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Key picks Code or StrictCode.
func Key(raw string, strict bool) string {
	if strict {
		return StrictCode(raw)
	}
	return Code(raw)
}

// DisciplineCode reads a discipline either as a small number ("56", "56,0",
// "56.0") or as free text holding a two digit run ("57 Construcción").
// It returns "" when neither form is present.
func DisciplineCode(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "NAN") {
		return ""
	}

	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64); err == nil &&
		!math.IsNaN(f) && !math.IsInf(f, 0) && f > -1 && f < 100 {
		return strconv.Itoa(int(f))
	}

	if m := twoDigitRun.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return strconv.Itoa(n)
	}
	return ""
}

// SubsystemCode finds a DDDD-XX(X)-DDD subsystem code in free text.
func SubsystemCode(text string) (string, bool) {
	t := strings.ToUpper(text)
	if strings.TrimSpace(t) == "" {
		return "", false
	}
	if m := subsystemPattern.FindStringSubmatch(t); m != nil {
		return m[1], true
	}
	if left, _, found := strings.Cut(t, " - "); found {
		left = strings.TrimSpace(left)
		if subsystemPatternAnchored.MatchString(left) {
			return left, true
		}
	}
	return "", false
}

// DisciplineFromSubsystem takes "56" out of "5620-S01-003".
func DisciplineFromSubsystem(text string) string {
	code, ok := SubsystemCode(text)
	if !ok {
		return ""
	}
	if m := subsystemDiscipline.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return ""
}

// SubsystemLabel cleans a protocol subsystem cell: uppercase, trimmed, and
// spreadsheet null markers mapped to "".
func SubsystemLabel(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "NAN", "NONE", "NULL":
		return ""
	}
	return s
}

// Status uppercases and trims a status cell.
func Status(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
