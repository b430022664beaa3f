package simulate

import (
	"math/rand"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/scoring"
)

// generateCases draws students from the synthetic population used for
// training, and pre-rolls every random choice so a seed fixes the run.
func generateCases(cfg *Config) []Case {
	ds := scoring.Generate(cfg.Students, cfg.Seed)
	rng := rand.New(rand.NewSource(cfg.Seed + 1)) //nolint:gosec // simulation, not security

	cases := make([]Case, ds.Len())
	for i, row := range ds.X {
		cases[i] = Case{
			Features: model.FeatureVector{
				Attendance:     row[0],
				InternalMarks:  row[1],
				QuizScore:      row[2],
				LoginFrequency: row[3],
				FinancialIssue: int(row[4]),
				BacklogCount:   int(row[5]),
			},
			Intervention: Interventions[rng.Intn(len(Interventions))],
			Complete:     rng.Float64() < cfg.CompletionRate,
			Roll:         rng.Float64(),
		}
	}
	return cases
}

// decideOutcome maps the predicted percentage and the pre-rolled draw to an
// outcome. Any intervention other than "None" halves the dropout chance.
func decideOutcome(c *Case) string {
	p := c.Percentage / 100
	if c.Intervention != "None" {
		p /= 2
	}
	switch {
	case c.Roll < p:
		return OutcomeDroppedOut
	case c.Roll < p+(1-p)/2:
		return OutcomeNoChange
	default:
		return OutcomeImproved
	}
}
