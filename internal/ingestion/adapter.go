package ingestion

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/protocol-recon/backend/internal/normalize"
	"github.com/protocol-recon/backend/internal/storage/models"
)

// ErrInvalidWorkbook is returned when the upload cannot be read as xlsx.
var ErrInvalidWorkbook = errors.New("invalid workbook")

// MissingColumnsError lists the required columns an upload lacks.
type MissingColumnsError struct {
	Source  models.Source
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing columns in %s: %s", e.Source, strings.Join(e.Columns, ", "))
}

type AdapterConfig struct {
	PrimarySheet   string
	SecondarySheet string
	HeaderScanRows int
}

// Parsed is the outcome of reading one workbook, ready to be stored.
type Parsed struct {
	Source    models.Source
	Sheet     string
	HeaderRow int
	Primary   []models.PrimaryRecord
	Secondary []models.SecondaryRecord
}

// Rows is the number of records parsed for the source.
func (p *Parsed) Rows() int {
	if p.Source == models.SourcePrimary {
		return len(p.Primary)
	}
	return len(p.Secondary)
}

// Adapter maps spreadsheet uploads onto records.
type Adapter struct {
	cfg AdapterConfig
}

func NewAdapter(cfg AdapterConfig) *Adapter {
	if cfg.PrimarySheet == "" {
		cfg.PrimarySheet = "APSA"
	}
	if cfg.SecondarySheet == "" {
		cfg.SecondarySheet = "Cargados ACONEX"
	}
	if cfg.HeaderScanRows <= 0 {
		cfg.HeaderScanRows = 20
	}
	return &Adapter{cfg: cfg}
}

// Parse reads content as a workbook of the given source. It has no side
// effects; a failure leaves nothing behind.
func (a *Adapter) Parse(source models.Source, content []byte) (*Parsed, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	preferred := a.cfg.PrimarySheet
	if source == models.SourceSecondary {
		preferred = a.cfg.SecondarySheet
	}
	sheet, err := pickSheet(f.GetSheetList(), preferred)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: reading sheet %q: %v", ErrInvalidWorkbook, sheet, err)
	}

	switch source {
	case models.SourcePrimary:
		return a.parsePrimary(sheet, rows)
	case models.SourceSecondary:
		return parseSecondary(sheet, rows)
	}
	return nil, fmt.Errorf("unknown source %q", source)
}

func pickSheet(sheets []string, preferred string) (string, error) {
	if len(sheets) == 0 {
		return "", fmt.Errorf("%w: no sheets", ErrInvalidWorkbook)
	}
	want := strings.ToLower(strings.TrimSpace(preferred))
	for _, s := range sheets {
		if strings.ToLower(strings.TrimSpace(s)) == want {
			return s, nil
		}
	}
	return sheets[0], nil
}

// findHeaderRow returns the first of the first maxScan rows holding at least
// two known header cells, or 0 when none does.
func findHeaderRow(rows [][]string, maxScan int) int {
	for i := 0; i < len(rows) && i < maxScan; i++ {
		hits := 0
		for _, cell := range rows[i] {
			if _, ok := primaryHeaderKeys[normalizeHeader(cell)]; ok {
				hits++
			}
		}
		if hits >= 2 {
			return i
		}
	}
	return 0
}

func (a *Adapter) parsePrimary(sheet string, rows [][]string) (*Parsed, error) {
	headerRow := findHeaderRow(rows, a.cfg.HeaderScanRows)
	var header []string
	if headerRow < len(rows) {
		header = rows[headerRow]
	}

	cols, missing := resolveColumns(header, primaryRules)
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Source: models.SourcePrimary, Columns: missing}
	}

	out := &Parsed{Source: models.SourcePrimary, Sheet: sheet, HeaderRow: headerRow, Primary: []models.PrimaryRecord{}}
	for _, row := range rows[headerRow+1:] {
		if blank(row) {
			continue
		}
		out.Primary = append(out.Primary, primaryRecord(row, cols))
	}
	return out, nil
}

func parseSecondary(sheet string, rows [][]string) (*Parsed, error) {
	var header []string
	if len(rows) > 0 {
		header = rows[0]
	}

	cols, missing := resolveColumns(header, secondaryRules)
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Source: models.SourceSecondary, Columns: missing}
	}

	out := &Parsed{Source: models.SourceSecondary, Sheet: sheet, Secondary: []models.SecondaryRecord{}}
	if len(rows) > 1 {
		for _, row := range rows[1:] {
			if blank(row) {
				continue
			}
			out.Secondary = append(out.Secondary, secondaryRecord(row, cols))
		}
	}
	return out, nil
}

func primaryRecord(row []string, cols map[string]int) models.PrimaryRecord {
	subsystem := normalize.SubsystemLabel(cell(row, cols, fieldSubsystem))

	discipline := normalize.DisciplineCode(cell(row, cols, fieldDiscipline))
	if discipline == "" || discipline == "0" {
		discipline = normalize.DisciplineFromSubsystem(subsystem)
	}

	return models.PrimaryRecord{
		Code:        cell(row, cols, fieldCode),
		Category:    cell(row, cols, fieldCategory),
		Description: cell(row, cols, fieldDescription),
		Tag:         cell(row, cols, fieldTag),
		Subsystem:   subsystem,
		Discipline:  discipline,
		Status:      normalize.Status(cell(row, cols, fieldStatus)),
	}
}

func secondaryRecord(row []string, cols map[string]int) models.SecondaryRecord {
	subsystemText := cell(row, cols, fieldSubsystem)
	subsystemCode, _ := normalize.SubsystemCode(subsystemText)

	function := cell(row, cols, fieldFunction)
	discipline := cell(row, cols, fieldDiscipline)
	if discipline == "" {
		discipline = function
	}

	return models.SecondaryRecord{
		DocumentNo:    cell(row, cols, fieldDocumentNo),
		Title:         cell(row, cols, fieldTitle),
		Discipline:    normalize.DisciplineCode(discipline),
		Function:      function,
		SubsystemText: subsystemText,
		SubsystemCode: subsystemCode,
		SystemNo:      cell(row, cols, fieldSystemNo),
		FileName:      cell(row, cols, fieldFileName),
		EquipmentTag:  cell(row, cols, fieldEquipmentTag),
		DateReceived:  cell(row, cols, fieldDateReceived),
		Revision:      cell(row, cols, fieldRevision),
		Transmitted:   cell(row, cols, fieldTransmitted),
	}
}

// cell reads a trimmed value; absent columns and short rows yield "".
func cell(row []string, cols map[string]int, field string) string {
	idx, ok := cols[field]
	if !ok || idx >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[idx])
	if strings.EqualFold(v, "nan") {
		return ""
	}
	return v
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
