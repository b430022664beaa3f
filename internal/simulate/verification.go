package simulate

import (
	"context"
	"fmt"
	"maps"
	"math"

	"github.com/okian/dropwatch/internal/domain/analytics"
	"github.com/okian/dropwatch/internal/domain/model"
)

const rateTolerance = 0.01

type validationResponse struct {
	Message                string   `json:"message"`
	HighRiskDropoutRate    *float64 `json:"high_risk_dropout_rate"`
	NonHighRiskDropoutRate *float64 `json:"non_high_risk_dropout_rate"`
	TotalValidatedCases    int      `json:"total_validated_cases"`
}

type dashboardResponse struct {
	Message                  string         `json:"message"`
	TotalLogs                int            `json:"total_logs"`
	RiskDistribution         map[string]int `json:"risk_distribution"`
	InterventionDistribution map[string]int `json:"intervention_distribution"`
	OutcomeDistribution      map[string]int `json:"outcome_distribution"`
}

// verify re-reads the whole log, checks every simulated record landed with
// the right outcome, then recomputes both aggregates locally and compares.
// The log may hold records from earlier runs; they are included on both sides.
func verify(ctx context.Context, c *client, cases []Case) error {
	var recs []model.InterventionRecord
	if err := c.getJSON(ctx, "/interventions", &recs); err != nil {
		return err
	}
	byTS := make(map[string]model.InterventionRecord, len(recs))
	for _, r := range recs {
		if _, dup := byTS[r.Timestamp]; !dup {
			byTS[r.Timestamp] = r
		}
	}
	for _, cs := range cases {
		if cs.Timestamp == "" {
			continue
		}
		r, ok := byTS[cs.Timestamp]
		switch {
		case !ok:
			return fmt.Errorf("%w: record %s missing from log", ErrVerification, cs.Timestamp)
		case r.RiskLevel != cs.RiskLevel || r.InterventionTaken != cs.Intervention:
			return fmt.Errorf("%w: record %s stored as %s/%s", ErrVerification, cs.Timestamp, r.RiskLevel, r.InterventionTaken)
		case r.Outcome != cs.Outcome:
			return fmt.Errorf("%w: record %s outcome %q, want %q", ErrVerification, cs.Timestamp, r.Outcome, cs.Outcome)
		}
	}

	want := analytics.Validation(recs)
	var got validationResponse
	if err := c.getJSON(ctx, "/validation-metrics", &got); err != nil {
		return err
	}
	if got.Message != want.Message || got.TotalValidatedCases != want.TotalValidatedCases ||
		!rateEqual(got.HighRiskDropoutRate, want.HighRiskDropoutRate) ||
		!rateEqual(got.NonHighRiskDropoutRate, want.NonHighRiskDropoutRate) {
		return fmt.Errorf("%w: validation metrics %+v disagree with log", ErrVerification, got)
	}

	wantDash := analytics.Dashboard(recs)
	var dash dashboardResponse
	if err := c.getJSON(ctx, "/dashboard", &dash); err != nil {
		return err
	}
	if dash.Message != wantDash.Message || dash.TotalLogs != wantDash.TotalLogs ||
		!tableEqual(dash.RiskDistribution, wantDash.RiskDistribution) ||
		!tableEqual(dash.InterventionDistribution, wantDash.InterventionDistribution) ||
		!tableEqual(dash.OutcomeDistribution, wantDash.OutcomeDistribution) {
		return fmt.Errorf("%w: dashboard disagrees with log", ErrVerification)
	}
	return nil
}

func rateEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) <= rateTolerance
}

// tableEqual treats nil and empty tables as equal.
func tableEqual(a, b map[string]int) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return maps.Equal(a, b)
}
