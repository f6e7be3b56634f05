package view

import (
	"strings"
)

var unsafeFilenameChars = strings.NewReplacer("/", "_", "\\", "_", "\"", "", ";", "_", " ", "_")

// ProtocolExportFilename encodes the active filters into the file name.
func ProtocolExportFilename(f *ProtocolFilter) string {
	var parts []string
	if g := strings.TrimSpace(f.Group); g != "" {
		parts = append(parts, "grupo-"+strings.ToLower(g))
	}
	if d := strings.TrimSpace(f.Discipline); d != "" {
		parts = append(parts, "disc-"+d)
	}
	if s := strings.TrimSpace(f.Subsystem); s != "" {
		parts = append(parts, "sub-"+s)
	}
	if s := strings.TrimSpace(f.Status); s != "" {
		parts = append(parts, "status-"+strings.ToLower(s))
	}
	if strings.TrimSpace(f.Query) != "" {
		parts = append(parts, "q")
	}
	switch {
	case f.Cargado:
		parts = append(parts, "cargado")
	case f.ErrorSS:
		parts = append(parts, "error-ss")
	case f.SinAconex:
		parts = append(parts, "sin-aconex")
	}

	if len(parts) == 0 {
		return "log_protocolos.csv"
	}
	return "log_protocolos_" + unsafeFilenameChars.Replace(strings.Join(parts, "_")) + ".csv"
}

// ChangesFilename names the subsystem delta export.
func ChangesFilename(group string) string {
	g := strings.ToLower(strings.TrimSpace(group))
	if g == "" {
		g = "all"
	}
	return "cambios_subsistemas_" + unsafeFilenameChars.Replace(g) + ".csv"
}

func DuplicatesFilename(strict bool) string {
	if strict {
		return "aconex_duplicados_strict.csv"
	}
	return "aconex_duplicados.csv"
}

func UnmatchedFilename(strict bool) string {
	if strict {
		return "aconex_unmatched_strict.csv"
	}
	return "aconex_unmatched.csv"
}

const SSErrorsFilename = "aconex_ss_errors.csv"

// ContentDisposition builds the attachment header value.
func ContentDisposition(filename string) string {
	return `attachment; filename="` + filename + `"`
}
