// Package simulate drives a running dropout API through the full
// predict, log, outcome cycle and cross-checks the aggregates it reports.
package simulate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/dropwatch/pkg/logger"
)

// Run executes a complete simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg *Config, log logger.Logger) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now(), Students: cfg.Students, ByRisk: map[string]int{}}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("students", cfg.Students),
		logger.Int("workers", cfg.Workers),
		logger.Float64("completionRate", cfg.CompletionRate))

	// Step 1: Check the service answers
	if err := c.getJSON(ctx, "/", nil); err != nil {
		return nil, fmt.Errorf("service check failed: %w", err)
	}

	// Step 2: Generate and drive the student journeys
	cases := generateCases(cfg)
	drive(ctx, c, cases, cfg.Workers, log)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i := range cases {
		cs := &cases[i]
		switch {
		case cs.RiskLevel == "":
			stats.Failed++
			continue
		case cs.Timestamp == "":
			stats.Predicted++
			stats.Failed++
			continue
		}
		stats.Predicted++
		stats.Logged++
		stats.ByRisk[cs.RiskLevel]++
		if cs.Outcome != "" {
			stats.Updated++
		} else if cs.Complete {
			stats.Failed++
		}
	}

	// Step 3: Verify the server's aggregates
	if err := verify(ctx, c, cases); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "simulation completed",
		logger.Int("predicted", stats.Predicted),
		logger.Int("logged", stats.Logged),
		logger.Int("updated", stats.Updated),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

// drive runs each case through the API on a pool of workers. Failures are
// logged and leave the case partially filled.
func drive(ctx context.Context, c *client, cases []Case, workers int, log logger.Logger) {
	idx := make(chan int, workers*2)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				if err := runCase(ctx, c, &cases[i]); err != nil {
					log.Warn(ctx, "student journey failed", logger.Int("case", i), logger.Error(err))
				}
			}
		}()
	}

	go func() {
		defer close(idx)
		for i := range cases {
			select {
			case <-ctx.Done():
				return
			case idx <- i:
			}
		}
	}()
	wg.Wait()
}

func runCase(ctx context.Context, c *client, cs *Case) error {
	var pred predictResponse
	if err := c.postJSON(ctx, "/predict", cs.Features, &pred); err != nil {
		return err
	}
	cs.RiskLevel, cs.Percentage = pred.RiskLevel, pred.DropoutRiskPercentage

	fv := cs.Features
	var logged logResponse
	if err := c.postJSON(ctx, "/log-intervention", logRequest{
		Attendance:        fv.Attendance,
		InternalMarks:     fv.InternalMarks,
		QuizScore:         fv.QuizScore,
		LoginFrequency:    fv.LoginFrequency,
		FinancialIssue:    fv.FinancialIssue,
		BacklogCount:      fv.BacklogCount,
		RiskLevel:         cs.RiskLevel,
		InterventionTaken: cs.Intervention,
	}, &logged); err != nil {
		return err
	}
	cs.Timestamp = logged.Timestamp

	if !cs.Complete {
		return nil
	}
	outcome := decideOutcome(cs)
	if err := c.postJSON(ctx, "/update-outcome", outcomeRequest{Timestamp: cs.Timestamp, Outcome: outcome}, nil); err != nil {
		return err
	}
	cs.Outcome = outcome
	return nil
}
