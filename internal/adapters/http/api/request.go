package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/okian/dropwatch/internal/domain/model"
)

const maxBodyBytes = 1 << 20

// featureInput mirrors model.FeatureVector with every field optional so
// missing keys can be told apart from zeros.
type featureInput struct {
	Attendance     *json.Number `json:"attendance"`
	InternalMarks  *json.Number `json:"internal_marks"`
	QuizScore      *json.Number `json:"quiz_score"`
	LoginFrequency *json.Number `json:"login_frequency"`
	FinancialIssue *json.Number `json:"financial_issue"`
	BacklogCount   *json.Number `json:"backlog_count"`
}

type interventionInput struct {
	featureInput
	RiskLevel         *string `json:"risk_level"`
	InterventionTaken *string `json:"intervention_taken"`
}

type outcomeInput struct {
	Timestamp *string `json:"timestamp"`
	Outcome   *string `json:"outcome"`
}

// fieldErrors collects per-field problems in declaration order.
type fieldErrors []string

func (fe *fieldErrors) add(field, msg string) {
	*fe = append(*fe, field+": "+msg)
}

func (fe fieldErrors) err() error {
	if len(fe) == 0 {
		return nil
	}
	return errors.New(strings.Join(fe, "; "))
}

// decodeBody reads one JSON object from r into dst. Unknown keys are ignored.
func decodeBody(r *http.Request, w http.ResponseWriter, dst any) error {
	const op = "api.decodeBody"
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.Is(err, io.EOF):
			return WrapKind(op, ErrValidation, errors.New("request body is empty"))
		case errors.As(err, &typeErr):
			return WrapKind(op, ErrValidation, fmt.Errorf("%s: expected %s", typeErr.Field, typeErr.Type))
		default:
			return WrapKind(op, ErrValidation, err)
		}
	}
	if dec.More() {
		return WrapKind(op, ErrValidation, errors.New("unexpected data after JSON object"))
	}
	return nil
}

func (in featureInput) vector(fe *fieldErrors) model.FeatureVector {
	return model.FeatureVector{
		Attendance:     floatField(fe, "attendance", in.Attendance),
		InternalMarks:  floatField(fe, "internal_marks", in.InternalMarks),
		QuizScore:      floatField(fe, "quiz_score", in.QuizScore),
		LoginFrequency: floatField(fe, "login_frequency", in.LoginFrequency),
		FinancialIssue: intField(fe, "financial_issue", in.FinancialIssue),
		BacklogCount:   intField(fe, "backlog_count", in.BacklogCount),
	}
}

func floatField(fe *fieldErrors, name string, n *json.Number) float64 {
	if n == nil {
		fe.add(name, "field required")
		return 0
	}
	v, err := n.Float64()
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		fe.add(name, "value is not a valid number")
		return 0
	}
	return v
}

// intField accepts integral numbers only; 1.0 is fine, 1.5 is not.
func intField(fe *fieldErrors, name string, n *json.Number) int {
	if n == nil {
		fe.add(name, "field required")
		return 0
	}
	v, err := n.Float64()
	if err != nil || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		fe.add(name, "value is not a valid integer")
		return 0
	}
	return int(v)
}

func stringField(fe *fieldErrors, name string, s *string) string {
	if s == nil {
		fe.add(name, "field required")
		return ""
	}
	return *s
}

func decodeFeatures(w http.ResponseWriter, r *http.Request) (model.FeatureVector, error) {
	const op = "api.decodeFeatures"
	var in featureInput
	if err := decodeBody(r, w, &in); err != nil {
		return model.FeatureVector{}, err
	}
	var fe fieldErrors
	fv := in.vector(&fe)
	if err := fe.err(); err != nil {
		return model.FeatureVector{}, WrapKind(op, ErrValidation, err)
	}
	return fv, nil
}

func decodeIntervention(w http.ResponseWriter, r *http.Request) (model.FeatureVector, string, string, error) {
	const op = "api.decodeIntervention"
	var in interventionInput
	if err := decodeBody(r, w, &in); err != nil {
		return model.FeatureVector{}, "", "", err
	}
	var fe fieldErrors
	fv := in.vector(&fe)
	risk := stringField(&fe, "risk_level", in.RiskLevel)
	taken := stringField(&fe, "intervention_taken", in.InterventionTaken)
	if err := fe.err(); err != nil {
		return model.FeatureVector{}, "", "", WrapKind(op, ErrValidation, err)
	}
	return fv, risk, taken, nil
}

func decodeOutcome(w http.ResponseWriter, r *http.Request) (string, string, error) {
	const op = "api.decodeOutcome"
	var in outcomeInput
	if err := decodeBody(r, w, &in); err != nil {
		return "", "", err
	}
	var fe fieldErrors
	ts := stringField(&fe, "timestamp", in.Timestamp)
	outcome := stringField(&fe, "outcome", in.Outcome)
	if err := fe.err(); err != nil {
		return "", "", WrapKind(op, ErrValidation, err)
	}
	return ts, outcome, nil
}

// validationMessage strips the op prefixes so clients see only the field detail.
func validationMessage(err error) string {
	var e *Error
	for errors.As(err, &e) {
		if e.Err == nil {
			break
		}
		err = e.Err
	}
	return err.Error()
}
