package simulate

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
)

// ErrVerification is returned when the server's aggregates disagree with
// what the simulator observed.
var ErrVerification = errors.New("verification failed")

// Defaults for Config.
const (
	DefaultStudents       = 200
	DefaultWorkers        = 8
	DefaultTimeout        = 10 * time.Second
	DefaultCompletionRate = 0.7
	DefaultSeed           = 42
)

// Interventions the simulator chooses from.
var Interventions = []string{"Counseling", "Mentoring", "Financial Aid", "Remedial Classes", "Parent Meeting", "None"}

// Outcomes the simulator records.
const (
	OutcomeImproved   = "Improved"
	OutcomeNoChange   = "No Change"
	OutcomeDroppedOut = "Dropped Out"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Students       int           // Number of synthetic students to score
	Workers        int           // Number of concurrent workers
	Timeout        time.Duration // HTTP request timeout
	CompletionRate float64       // Share of logged interventions that get an outcome
	Seed           int64         // Seed for students, interventions and outcomes
}

// Validate fills defaults and rejects impossible settings.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base url is required")
	}
	if c.Students <= 0 {
		return fmt.Errorf("students must be positive, got %d", c.Students)
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CompletionRate < 0 || c.CompletionRate > 1 {
		return fmt.Errorf("completion rate must be within [0,1], got %v", c.CompletionRate)
	}
	return nil
}

// Case is one simulated student journey.
type Case struct {
	Features     model.FeatureVector
	Intervention string
	Complete     bool
	Roll         float64 // uniform draw deciding the outcome once the risk is known

	RiskLevel  string
	Percentage float64
	Timestamp  string
	Outcome    string
}

// Stats holds run statistics.
type Stats struct {
	Students  int
	Predicted int
	Logged    int
	Updated   int
	Failed    int
	ByRisk    map[string]int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}
