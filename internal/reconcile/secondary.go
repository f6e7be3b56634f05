package reconcile

import (
	"sort"
	"strconv"
	"strings"

	"github.com/protocol-recon/backend/internal/normalize"
	"github.com/protocol-recon/backend/internal/storage/models"
)

type UnmatchedRow struct {
	DocumentNo   string `json:"document_no"`
	Title        string `json:"title"`
	Function     string `json:"function"`
	Subsystem    string `json:"subsystem"`
	Revision     string `json:"revision"`
	FileName     string `json:"file_name"`
	DateReceived string `json:"date_received"`
}

var UnmatchedCSVHeader = []string{"document_no", "title", "function", "subsystem", "revision", "file_name", "date_received"}

func (r UnmatchedRow) CSV() []string {
	return []string{r.DocumentNo, r.Title, r.Function, r.Subsystem, r.Revision, r.FileName, r.DateReceived}
}

// Unmatched lists secondary rows whose document number has no code match in
// the primary snapshot, sorted by document number. The free-text query is a
// case-insensitive substring test on document number and title. Empty when
// either snapshot is missing.
func Unmatched(primary *models.PrimaryLoad, secondary *models.SecondaryLoad, strict bool, query string) []UnmatchedRow {
	rows := []UnmatchedRow{}
	if primary == nil || secondary == nil {
		return rows
	}

	keys := primaryKeys(primary, strict)
	q := strings.ToLower(strings.TrimSpace(query))

	for _, r := range secondary.Rows {
		if k := normalize.Key(r.DocumentNo, strict); k != "" {
			if _, ok := keys[k]; ok {
				continue
			}
		}
		if q != "" && !strings.Contains(strings.ToLower(r.DocumentNo), q) && !strings.Contains(strings.ToLower(r.Title), q) {
			continue
		}
		rows = append(rows, UnmatchedRow{
			DocumentNo:   r.DocumentNo,
			Title:        r.Title,
			Function:     r.Function,
			Subsystem:    r.SubsystemText,
			Revision:     r.Revision,
			FileName:     r.FileName,
			DateReceived: r.DateReceived,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].DocumentNo < rows[j].DocumentNo
	})
	return rows
}

const diagnosticSampleSize = 50

// UnmatchedDiagnostics compares strict and normalized matching so operators
// can see how much the separator stripping recovers.
type UnmatchedDiagnostics struct {
	HasData           bool     `json:"has_data"`
	NoMatchStrict     int      `json:"no_match_strict"`
	NoMatchNormalized int      `json:"no_match_normalized"`
	SampleNormalized  []string `json:"sample_normalized_no_match"`
}

func DiagnoseUnmatched(primary *models.PrimaryLoad, secondary *models.SecondaryLoad) UnmatchedDiagnostics {
	d := UnmatchedDiagnostics{SampleNormalized: []string{}}
	if primary == nil || secondary == nil {
		return d
	}
	d.HasData = true

	strict := Unmatched(primary, secondary, true, "")
	normalized := Unmatched(primary, secondary, false, "")
	d.NoMatchStrict = len(strict)
	d.NoMatchNormalized = len(normalized)

	for i := 0; i < len(normalized) && i < diagnosticSampleSize; i++ {
		d.SampleNormalized = append(d.SampleNormalized, normalized[i].DocumentNo)
	}
	return d
}

type DuplicateGroup struct {
	DocumentNo string `json:"document_no"`
	Count      int    `json:"count"`
}

var DuplicatesCSVHeader = []string{"document_no", "count"}

func (g DuplicateGroup) CSV() []string {
	return []string{g.DocumentNo, strconv.Itoa(g.Count)}
}

// Duplicates groups the secondary rows by document key and keeps the groups
// with two or more rows, by count descending then key ascending. Rows whose
// document number is blank, or whose key is empty, never take part.
func Duplicates(secondary *models.SecondaryLoad, strict bool) []DuplicateGroup {
	groups := []DuplicateGroup{}
	if secondary == nil {
		return groups
	}

	counts := map[string]int{}
	for _, r := range secondary.Rows {
		if strings.TrimSpace(r.DocumentNo) == "" {
			continue
		}
		k := normalize.Key(r.DocumentNo, strict)
		if k == "" {
			continue
		}
		counts[k]++
	}

	for k, n := range counts {
		if n >= 2 {
			groups = append(groups, DuplicateGroup{DocumentNo: k, Count: n})
		}
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].DocumentNo < groups[j].DocumentNo
	})
	return groups
}
