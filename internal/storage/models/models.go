package models

import (
	"fmt"
	"strings"
	"time"
)

// Source tags one of the two registries a snapshot was ingested from.
type Source string

const (
	// SourcePrimary is the construction-protocol registry (APSA).
	SourcePrimary Source = "APSA"
	// SourceSecondary is the document-transmittal log (ACONEX).
	SourceSecondary Source = "ACONEX"
)

func ParseSource(s string) (Source, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SourcePrimary):
		return SourcePrimary, nil
	case string(SourceSecondary):
		return SourceSecondary, nil
	}
	return "", fmt.Errorf("unknown source %q", s)
}

const (
	StatusOpen   = "ABIERTO"
	StatusClosed = "CERRADO"
)

// Disciplines are the discipline codes reported one by one.
var Disciplines = []string{"50", "51", "52", "53", "54", "55", "56", "57", "58", "59"}

type Snapshot struct {
	ID       int64     `json:"id"`
	Source   Source    `json:"source"`
	Filename string    `json:"filename"`
	FileHash string    `json:"file_hash"`
	LoadedAt time.Time `json:"loaded_at"`
	RowCount int       `json:"row_count"`
}

type PrimaryRecord struct {
	ID            int64
	SnapshotID    int64
	Code          string
	Category      string
	Description   string
	Tag           string
	Subsystem     string
	Discipline    string
	Status        string
	CodeNorm      string
	SubsystemNorm string
}

type SecondaryRecord struct {
	ID                int64
	SnapshotID        int64
	DocumentNo        string
	Title             string
	Discipline        string
	Function          string
	SubsystemText     string
	SubsystemCode     string
	SystemNo          string
	FileName          string
	EquipmentTag      string
	DateReceived      string
	Revision          string
	Transmitted       string
	DocumentNoNorm    string
	SubsystemCodeNorm string
}

// PrimaryLoad is one primary snapshot together with its rows.
type PrimaryLoad struct {
	Snapshot Snapshot
	Rows     []PrimaryRecord
}

// SecondaryLoad is one secondary snapshot together with its rows.
type SecondaryLoad struct {
	Snapshot Snapshot
	Rows     []SecondaryRecord
}

// DisciplineGroup names a set of discipline codes reported together.
type DisciplineGroup struct {
	Key         string   `json:"key"`
	Label       string   `json:"label"`
	Disciplines []string `json:"disciplines"`
}

// Contains reports whether the discipline code belongs to the group.
func (g DisciplineGroup) Contains(discipline string) bool {
	for _, d := range g.Disciplines {
		if d == discipline {
			return true
		}
	}
	return false
}

// FindGroup looks a group up by key, case-insensitively.
func FindGroup(groups []DisciplineGroup, key string) (DisciplineGroup, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, g := range groups {
		if strings.ToLower(g.Key) == key {
			return g, true
		}
	}
	return DisciplineGroup{}, false
}
