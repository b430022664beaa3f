// Package repository persists the intervention log behind the Store
// interface. Backends: CSV file, SQLite, Postgres and memory.
package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/dropwatch/internal/domain/model"
)

// Store is the append-only intervention log. Records keep append order and
// are keyed by their timestamp string.
type Store interface {
	// Append writes one record at the end of the log.
	Append(ctx context.Context, rec model.InterventionRecord) error

	// UpdateOutcome sets the outcome of the first record whose timestamp
	// matches exactly. Returns ErrStoreNotFound when nothing was ever
	// logged and ErrRecordNotFound when no timestamp matches.
	UpdateOutcome(ctx context.Context, timestamp, outcome string) error

	// All returns every record in append order. An absent store yields an
	// empty slice.
	All(ctx context.Context) ([]model.InterventionRecord, error)

	Close() error
}

// Columns is the fixed persisted layout, in order.
var Columns = []string{
	"timestamp",
	"attendance",
	"internal_marks",
	"quiz_score",
	"login_frequency",
	"financial_issue",
	"backlog_count",
	"risk_level",
	"intervention_taken",
	"outcome",
}

const outcomeColumn = 9

// toRow renders a record in the persisted text form. Text fields have
// their line breaks normalized to \n, which is what encoding/csv reads back
// from a quoted field.
func toRow(r model.InterventionRecord) []string {
	return []string{
		normalizeNewlines(r.Timestamp),
		model.FormatFloat(r.Attendance),
		model.FormatFloat(r.InternalMarks),
		model.FormatFloat(r.QuizScore),
		model.FormatFloat(r.LoginFrequency),
		strconv.Itoa(r.FinancialIssue),
		strconv.Itoa(r.BacklogCount),
		normalizeNewlines(r.RiskLevel),
		normalizeNewlines(r.InterventionTaken),
		normalizeNewlines(r.Outcome),
	}
}

var newlineReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func normalizeNewlines(s string) string {
	if !strings.ContainsRune(s, '\r') {
		return s
	}
	return newlineReplacer.Replace(s)
}

// fromRow parses the persisted text form.
func fromRow(row []string) (model.InterventionRecord, error) {
	if len(row) != len(Columns) {
		return model.InterventionRecord{}, fmt.Errorf("%w: %d fields, want %d", ErrCorruptStore, len(row), len(Columns))
	}
	floats := make([]float64, 6)
	for i := range floats {
		v, err := strconv.ParseFloat(row[i+1], 64)
		if err != nil {
			return model.InterventionRecord{}, fmt.Errorf("%w: %s %q", ErrCorruptStore, Columns[i+1], row[i+1])
		}
		floats[i] = v
	}
	return model.InterventionRecord{
		Timestamp: row[0],
		FeatureVector: model.FeatureVector{
			Attendance:     floats[0],
			InternalMarks:  floats[1],
			QuizScore:      floats[2],
			LoginFrequency: floats[3],
			FinancialIssue: int(floats[4]),
			BacklogCount:   int(floats[5]),
		},
		RiskLevel:         row[7],
		InterventionTaken: row[8],
		Outcome:           row[outcomeColumn],
	}, nil
}
