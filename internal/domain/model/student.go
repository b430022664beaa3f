// Package model contains domain models passed between layers.
package model

import (
	"strconv"
	"time"
)

// NumFeatures is the width of a FeatureVector as fed to the classifier.
const NumFeatures = 6

// TimestampLayout is the naive-UTC ISO-8601 layout used as the record key.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// FeatureNames are the human readable feature labels, in vector order.
var FeatureNames = [NumFeatures]string{
	"Attendance",
	"Internal Marks",
	"Quiz Score",
	"Login Frequency",
	"Financial Issue",
	"Backlog Count",
}

// ColumnNames are the dataset/CSV column names, in vector order.
var ColumnNames = [NumFeatures]string{
	"attendance",
	"internal_marks",
	"quiz_score",
	"login_frequency",
	"financial_issue",
	"backlog_count",
}

// FeatureVector is one student snapshot. It has no identity and lives for
// a single request.
type FeatureVector struct {
	Attendance     float64 `json:"attendance"`      // percentage, expected 0-100
	InternalMarks  float64 `json:"internal_marks"`  // internal assessment marks
	QuizScore      float64 `json:"quiz_score"`      // quiz score
	LoginFrequency float64 `json:"login_frequency"` // LMS logins per period
	FinancialIssue int     `json:"financial_issue"` // 0/1 flag
	BacklogCount   int     `json:"backlog_count"`   // failed courses pending
}

// Values returns the vector as classifier input, in FeatureNames order.
func (f FeatureVector) Values() []float64 {
	return []float64{
		f.Attendance,
		f.InternalMarks,
		f.QuizScore,
		f.LoginFrequency,
		float64(f.FinancialIssue),
		float64(f.BacklogCount),
	}
}

// InterventionRecord is one persisted row of the intervention log.
// Timestamp is the key; Outcome stays empty until updated.
type InterventionRecord struct {
	Timestamp string `json:"timestamp"`
	FeatureVector
	RiskLevel         string `json:"risk_level"`
	InterventionTaken string `json:"intervention_taken"`
	Outcome           string `json:"outcome"`
}

// Completed reports whether an outcome has been recorded.
func (r InterventionRecord) Completed() bool {
	return r.Outcome != ""
}

// FormatTimestamp renders t in the record key layout (always UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// FormatFloat renders a float the way the log file stores it: shortest
// representation, with a trailing ".0" for integral values.
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'N' || c == 'I' {
			return s
		}
	}
	return s + ".0"
}
