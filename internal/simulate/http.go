package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// requestIDHeader tags every simulated call so server logs can be matched.
const requestIDHeader = "X-Request-ID"

// client is a small JSON client for the dropout API.
type client struct {
	http    *http.Client
	baseURL string
}

func newClient(baseURL string, timeout time.Duration) *client {
	return &client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// getJSON performs a GET and decodes a 200 response into out.
func (c *client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// postJSON sends body as JSON and decodes a 200 response into out.
func (c *client) postJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) error {
	req.Header.Set(requestIDHeader, uuid.NewString())
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", req.URL.Path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

type predictResponse struct {
	DropoutRiskPercentage float64  `json:"dropout_risk_percentage"`
	RiskLevel             string   `json:"risk_level"`
	TopRiskFactors        []string `json:"top_risk_factors"`
}

type logRequest struct {
	Attendance        float64 `json:"attendance"`
	InternalMarks     float64 `json:"internal_marks"`
	QuizScore         float64 `json:"quiz_score"`
	LoginFrequency    float64 `json:"login_frequency"`
	FinancialIssue    int     `json:"financial_issue"`
	BacklogCount      int     `json:"backlog_count"`
	RiskLevel         string  `json:"risk_level"`
	InterventionTaken string  `json:"intervention_taken"`
}

type logResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type outcomeRequest struct {
	Timestamp string `json:"timestamp"`
	Outcome   string `json:"outcome"`
}
