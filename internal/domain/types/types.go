// Package types contains common types used across the application
package types

import "encoding/json"

// RiskLevel is the tier derived from the predicted dropout percentage.
type RiskLevel string

// Risk tiers.
const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// String returns the tier label.
func (r RiskLevel) String() string { return string(r) }

// Valid reports whether r is one of the three known tiers.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// RiskAssessment is the scorer's answer for a single feature vector.
type RiskAssessment struct {
	DropoutRiskPercentage float64   `json:"dropout_risk_percentage"`
	RiskLevel             RiskLevel `json:"risk_level"`
	TopRiskFactors        []string  `json:"top_risk_factors"`
}

// ValidationSummary compares predicted tier with recorded outcomes.
// When there is nothing to compare, only Message is set.
type ValidationSummary struct {
	Message string `json:"message"`

	// Rates are percentages; nil when the partition has no completed records.
	HighRiskDropoutRate    *float64 `json:"high_risk_dropout_rate"`
	NonHighRiskDropoutRate *float64 `json:"non_high_risk_dropout_rate"`
	TotalValidatedCases    int      `json:"total_validated_cases"`
}

// Empty reports whether the summary is a "no data" sentinel.
func (v ValidationSummary) Empty() bool { return v.Message != "" }

// MarshalJSON emits either the sentinel message or the full set of rates,
// with an undefined rate rendered as null.
func (v ValidationSummary) MarshalJSON() ([]byte, error) {
	if v.Empty() {
		return json.Marshal(messageOnly{Message: v.Message})
	}
	return json.Marshal(struct {
		HighRiskDropoutRate    *float64 `json:"high_risk_dropout_rate"`
		NonHighRiskDropoutRate *float64 `json:"non_high_risk_dropout_rate"`
		TotalValidatedCases    int      `json:"total_validated_cases"`
	}{v.HighRiskDropoutRate, v.NonHighRiskDropoutRate, v.TotalValidatedCases})
}

// DashboardSummary is a set of frequency tables over the whole log.
type DashboardSummary struct {
	Message string `json:"message"`

	TotalLogs                int            `json:"total_logs"`
	RiskDistribution         map[string]int `json:"risk_distribution"`
	InterventionDistribution map[string]int `json:"intervention_distribution"`
	OutcomeDistribution      map[string]int `json:"outcome_distribution"`
}

// Empty reports whether the summary is a "no data" sentinel.
func (d DashboardSummary) Empty() bool { return d.Message != "" }

// MarshalJSON emits either the sentinel message or all four tables.
func (d DashboardSummary) MarshalJSON() ([]byte, error) {
	if d.Empty() {
		return json.Marshal(messageOnly{Message: d.Message})
	}
	return json.Marshal(struct {
		TotalLogs                int            `json:"total_logs"`
		RiskDistribution         map[string]int `json:"risk_distribution"`
		InterventionDistribution map[string]int `json:"intervention_distribution"`
		OutcomeDistribution      map[string]int `json:"outcome_distribution"`
	}{d.TotalLogs, nonNil(d.RiskDistribution), nonNil(d.InterventionDistribution), nonNil(d.OutcomeDistribution)})
}

type messageOnly struct {
	Message string `json:"message"`
}

func nonNil(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}
