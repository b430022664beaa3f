// Package analytics aggregates the intervention log into validation and
// dashboard summaries. Every call recomputes from the records it is given.
package analytics

import (
	"strings"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/types"
	"github.com/shopspring/decimal"
)

// Sentinel messages returned instead of numbers when there is nothing to
// aggregate.
const (
	MsgNoValidationData = "No validation data available"
	MsgNoCompletedYet   = "No completed outcomes yet"
	MsgNoDashboardData  = "No data available"
	droppedOutOutcome   = "dropped out"
	highRiskLevel       = string(types.RiskHigh)
)

// Validation compares the predicted tier with the recorded outcomes: the
// dropout rate among completed High records against the rest.
func Validation(records []model.InterventionRecord) types.ValidationSummary {
	if len(records) == 0 {
		return types.ValidationSummary{Message: MsgNoValidationData}
	}

	var high, rest tally
	for _, r := range records {
		if !r.Completed() {
			continue
		}
		if r.RiskLevel == highRiskLevel {
			high.add(r.Outcome)
		} else {
			rest.add(r.Outcome)
		}
	}
	if high.total+rest.total == 0 {
		return types.ValidationSummary{Message: MsgNoCompletedYet}
	}

	return types.ValidationSummary{
		HighRiskDropoutRate:    high.rate(),
		NonHighRiskDropoutRate: rest.rate(),
		TotalValidatedCases:    high.total + rest.total,
	}
}

// Dashboard builds frequency tables over every record. Outcomes are only
// counted once set.
func Dashboard(records []model.InterventionRecord) types.DashboardSummary {
	if len(records) == 0 {
		return types.DashboardSummary{Message: MsgNoDashboardData}
	}

	d := types.DashboardSummary{
		TotalLogs:                len(records),
		RiskDistribution:         make(map[string]int),
		InterventionDistribution: make(map[string]int),
		OutcomeDistribution:      make(map[string]int),
	}
	for _, r := range records {
		d.RiskDistribution[r.RiskLevel]++
		d.InterventionDistribution[r.InterventionTaken]++
		if r.Completed() {
			d.OutcomeDistribution[r.Outcome]++
		}
	}
	return d
}

type tally struct {
	total   int
	dropped int
}

func (t *tally) add(outcome string) {
	t.total++
	if strings.ToLower(outcome) == droppedOutOutcome {
		t.dropped++
	}
}

// rate is the dropped share as a percentage with two decimals, or nil for
// an empty partition.
func (t tally) rate() *float64 {
	if t.total == 0 {
		return nil
	}
	pct := decimal.NewFromInt(int64(t.dropped)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(t.total)), 8).
		RoundBank(2).
		InexactFloat64()
	return &pct
}
