package ingestion

import (
	"strings"
)

// columnRule maps one canonical field to the header texts that may carry it.
type columnRule struct {
	field      string
	label      string
	candidates []string
	required   bool
	// contains matches headers holding a candidate as a substring; otherwise
	// the header must equal a candidate.
	contains bool
}

const (
	fieldCode         = "code"
	fieldCategory     = "category"
	fieldDescription  = "description"
	fieldTag          = "tag"
	fieldSubsystem    = "subsystem"
	fieldDiscipline   = "discipline"
	fieldStatus       = "status"
	fieldDocumentNo   = "document_no"
	fieldTitle        = "title"
	fieldFunction     = "function"
	fieldSystemNo     = "system_no"
	fieldFileName     = "file_name"
	fieldEquipmentTag = "equipment_tag"
	fieldDateReceived = "date_received"
	fieldRevision     = "revision"
	fieldTransmitted  = "transmitted"
)

var primaryRules = []columnRule{
	{field: fieldCode, label: "N° CÓDIGO CMDIC", candidates: []string{"CÓDIGO CMDIC", "CODIGO CMDIC"}, required: true, contains: true},
	{field: fieldDescription, label: "DESCRIPCIÓN DE ELEMENTOS", candidates: []string{"DESCRIPCIÓN DE ELEMENTOS", "DESCRIPCIÓN", "DESCRIPCION"}, required: true, contains: true},
	{field: fieldTag, label: "TAG", candidates: []string{"TAG"}, required: true, contains: true},
	{field: fieldSubsystem, label: "SUBSISTEMA", candidates: []string{"SUBSISTEMA"}, required: true, contains: true},
	{field: fieldDiscipline, label: "DISCIPLINA", candidates: []string{"DISCIPLINA"}, required: true, contains: true},
	{field: fieldStatus, label: "STATUS BIM 360 FIELD", candidates: []string{"STATUS BIM 360", "STATUS BIM360"}, required: true, contains: true},
	{field: fieldCategory, label: "TIPO", candidates: []string{"TIPO"}},
}

// primaryHeaderKeys identify the header row of the protocol sheet.
var primaryHeaderKeys = map[string]struct{}{
	"N° CÓDIGO CMDIC":          {},
	"N° CODIGO CMDIC":          {},
	"DESCRIPCIÓN":              {},
	"DESCRIPCION":              {},
	"DESCRIPCIÓN DE ELEMENTOS": {},
	"SUBSISTEMA":               {},
	"DISCIPLINA":               {},
	"STATUS BIM 360 FIELD":     {},
}

var secondaryRules = []columnRule{
	{field: fieldDocumentNo, label: "DOCUMENT NO", candidates: []string{"DOCUMENT NO", "DOCUMENT NUMBER", "DOCUMENT N°", "DOCUMENT Nº"}, required: true},
	{field: fieldTitle, label: "TITLE", candidates: []string{"TITLE"}},
	{field: fieldDiscipline, label: "DISCIPLINE", candidates: []string{"DISCIPLINE"}},
	{field: fieldFunction, label: "FUNCTION", candidates: []string{"FUNCTION"}, required: true},
	{field: fieldSubsystem, label: "SUBSYSTEM N°", candidates: []string{"SUBSYSTEM N°", "SUBSYSTEM Nº", "SUBSYSTEM NO", "SUBSYSTEM NUMBER"}, required: true},
	{field: fieldSystemNo, label: "SYSTEM N°", candidates: []string{"SYSTEM N°", "SYSTEM Nº", "SYSTEM NO", "SYSTEM NUMBER"}},
	{field: fieldFileName, label: "FILE NAME", candidates: []string{"FILE NAME"}},
	{field: fieldEquipmentTag, label: "EQUIPMENT/TAG N°", candidates: []string{"EQUIPMENT/TAG N°", "EQUIPMENT/TAG NO", "EQUIPMENT/TAG"}},
	{field: fieldDateReceived, label: "DATE RECEIVED", candidates: []string{"DATE RECEIVED", "RECEIVED DATE"}},
	{field: fieldRevision, label: "REVISION", candidates: []string{"REVISION"}},
	{field: fieldTransmitted, label: "TRANSMITTED", candidates: []string{"TRANSMITTED", "TRANSMITTAL IN"}},
}

var headerCleaner = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// normalizeHeader uppercases, trims and folds line breaks and double spaces.
func (r columnRule) matches(header string) bool {
	for _, cand := range r.candidates {
		if header == cand || (r.contains && strings.Contains(header, cand)) {
			return true
		}
	}
	return false
}

func normalizeHeader(h string) string {
	h = headerCleaner.Replace(strings.ToUpper(strings.TrimSpace(h)))
	for strings.Contains(h, "  ") {
		h = strings.ReplaceAll(h, "  ", " ")
	}
	return h
}

// resolveColumns applies the rules in order. For each rule the leftmost
// column matching any of its candidates wins. It returns field -> column
// index and the labels of the required fields that were not found.
func resolveColumns(headers []string, rules []columnRule) (map[string]int, []string) {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}

	cols := map[string]int{}
	var missing []string
	for _, rule := range rules {
		idx := -1
		for i, h := range normalized {
			if h != "" && rule.matches(h) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			cols[rule.field] = idx
		} else if rule.required {
			missing = append(missing, rule.label)
		}
	}
	return cols, missing
}
