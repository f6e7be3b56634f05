package sqlite

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/mattn/go-sqlite3"

	"github.com/protocol-recon/backend/internal/storage/models"
)

// DataError reports a row that cannot be stored. The whole snapshot it
// belonged to has been rolled back.
type DataError struct {
	Source models.Source
	Row    int
	Field  string
	Limit  int
	Length int
	Err    error
}

func (e *DataError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s row %d: field %s has %d characters, limit is %d", e.Source, e.Row, e.Field, e.Length, e.Limit)
	}
	return fmt.Sprintf("%s row %d: %v", e.Source, e.Row, e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

type fieldLimit struct {
	name  string
	value string
	limit int
}

func checkLimits(source models.Source, row int, fields []fieldLimit) error {
	for _, f := range fields {
		if n := utf8.RuneCountInString(f.value); n > f.limit {
			return &DataError{Source: source, Row: row, Field: f.name, Limit: f.limit, Length: n}
		}
	}
	return nil
}

func primaryLimits(r *models.PrimaryRecord) []fieldLimit {
	return []fieldLimit{
		{"code", r.Code, 120},
		{"tag", r.Tag, 120},
		{"subsystem", r.Subsystem, 60},
		{"discipline", r.Discipline, 10},
		{"status", r.Status, 30},
	}
}

func secondaryLimits(r *models.SecondaryRecord) []fieldLimit {
	return []fieldLimit{
		{"document_no", r.DocumentNo, 120},
		{"discipline", r.Discipline, 60},
		{"function", r.Function, 120},
		{"subsystem_text", r.SubsystemText, 255},
		{"subsystem_code", r.SubsystemCode, 60},
		{"system_no", r.SystemNo, 60},
		{"file_name", r.FileName, 255},
		{"equipment_tag", r.EquipmentTag, 120},
		{"date_received", r.DateReceived, 30},
		{"revision", r.Revision, 30},
		{"transmitted", r.Transmitted, 60},
	}
}

// asDataError turns constraint violations raised by the database into a
// DataError; other errors pass through unchanged.
func asDataError(source models.Source, row int, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return &DataError{Source: source, Row: row, Err: err}
	}
	return err
}
