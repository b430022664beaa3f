package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/dropwatch/internal/adapters/http/api"
	repository "github.com/okian/dropwatch/internal/adapters/repository"
	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/types"
	"github.com/okian/dropwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing
type mockDependencies struct {
	predict    types.RiskAssessment
	predictErr error
	gotVector  model.FeatureVector

	logTS     string
	logErr    error
	logged    []string
	updateErr error
	updated   [][2]string

	records    []model.InterventionRecord
	recordsErr error
	validation types.ValidationSummary
	dashboard  types.DashboardSummary
}

func (m *mockDependencies) Predict(_ context.Context, fv model.FeatureVector) (types.RiskAssessment, error) {
	m.gotVector = fv
	return m.predict, m.predictErr
}

func (m *mockDependencies) LogIntervention(_ context.Context, fv model.FeatureVector, risk, taken string) (string, error) {
	m.gotVector = fv
	m.logged = append(m.logged, risk, taken)
	return m.logTS, m.logErr
}

func (m *mockDependencies) UpdateOutcome(_ context.Context, ts, outcome string) error {
	m.updated = append(m.updated, [2]string{ts, outcome})
	return m.updateErr
}

func (m *mockDependencies) Interventions(context.Context) ([]model.InterventionRecord, error) {
	return m.records, m.recordsErr
}

func (m *mockDependencies) ValidationMetrics(context.Context) (types.ValidationSummary, error) {
	return m.validation, m.recordsErr
}

func (m *mockDependencies) Dashboard(context.Context) (types.DashboardSummary, error) {
	return m.dashboard, m.recordsErr
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

const studentJSON = `{"attendance":85,"internal_marks":70,"quiz_score":8,"login_frequency":12,"financial_issue":0,"backlog_count":1}`

func newMux(deps *mockDependencies) *http.ServeMux {
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("Then the root endpoint should report the service is running", func() {
			w := do(mux, http.MethodGet, "/", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["message"], ShouldEqual, "AI Dropout Prediction API is running")
		})

		Convey("And unknown paths should 404", func() {
			So(do(mux, http.MethodGet, "/unknown", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("And health endpoint should expose metrics", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "dropwatch_")
		})

		Convey("And stats endpoint should be accessible", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("And wrong methods should 404", func() {
			So(do(mux, http.MethodGet, "/predict", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/dashboard", "{}").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestPredict(t *testing.T) {
	Convey("Given a predict endpoint", t, func() {
		deps := &mockDependencies{predict: types.RiskAssessment{
			DropoutRiskPercentage: 73.46,
			RiskLevel:             types.RiskHigh,
			TopRiskFactors:        []string{"Financial Issue", "Internal Marks", "Attendance"},
		}}
		mux := newMux(deps)

		Convey("When a valid student is posted", func() {
			w := do(mux, http.MethodPost, "/predict", studentJSON)

			Convey("Then the assessment should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["dropout_risk_percentage"], ShouldEqual, 73.46)
				So(body["risk_level"], ShouldEqual, "High")
				So(body["top_risk_factors"], ShouldResemble, []any{"Financial Issue", "Internal Marks", "Attendance"})
				So(deps.gotVector, ShouldResemble, model.FeatureVector{
					Attendance: 85, InternalMarks: 70, QuizScore: 8, LoginFrequency: 12, BacklogCount: 1,
				})
			})
		})

		Convey("When integral floats are sent for the flags", func() {
			w := do(mux, http.MethodPost, "/predict", strings.Replace(studentJSON, `"backlog_count":1`, `"backlog_count":2.0`, 1))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.gotVector.BacklogCount, ShouldEqual, 2)
		})

		cases := map[string]string{
			"a missing field":      `{"attendance":85,"internal_marks":70,"quiz_score":8,"login_frequency":12,"financial_issue":0}`,
			"a wrong type":         strings.Replace(studentJSON, `"attendance":85`, `"attendance":true`, 1),
			"a fractional backlog": strings.Replace(studentJSON, `"backlog_count":1`, `"backlog_count":1.5`, 1),
			"malformed JSON":       `{"attendance":`,
			"an empty body":        ``,
			"a null field":         strings.Replace(studentJSON, `"quiz_score":8`, `"quiz_score":null`, 1),
			"trailing garbage":     studentJSON + `{}`,
			"a fractional flag":    strings.Replace(studentJSON, `"financial_issue":0`, `"financial_issue":0.5`, 1),
			"a non-numeric string": strings.Replace(studentJSON, `"attendance":85`, `"attendance":"high"`, 1),
			"an array instead":     `[1,2,3]`,
		}
		for name, body := range cases {
			Convey(fmt.Sprintf("When %s is posted", name), func() {
				req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				Convey("Then it should be rejected with a validation error", func() {
					So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
					So(decode(w)["code"], ShouldEqual, "validation_error")
				})
			})
		}

		Convey("When the missing field is reported", func() {
			w := do(mux, http.MethodPost, "/predict", `{"attendance":85}`)
			msg := decode(w)["message"].(string)
			So(msg, ShouldContainSubstring, "internal_marks: field required")
			So(msg, ShouldContainSubstring, "backlog_count: field required")
			So(msg, ShouldNotContainSubstring, "api.")
		})

		Convey("When scoring fails", func() {
			deps.predictErr = errors.New("classifier unavailable")
			w := do(mux, http.MethodPost, "/predict", studentJSON)

			Convey("Then a 500 with the detail should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				body := decode(w)
				So(body["code"], ShouldEqual, "scoring_error")
				So(body["message"], ShouldContainSubstring, "classifier unavailable")
			})
		})
	})
}

func TestInterventions(t *testing.T) {
	Convey("Given the intervention endpoints", t, func() {
		deps := &mockDependencies{logTS: "2024-05-01T09:30:00.123456"}
		mux := newMux(deps)

		Convey("When an intervention is logged", func() {
			body := strings.TrimSuffix(studentJSON, "}") + `,"risk_level":"High","intervention_taken":"Counseling"}`
			w := do(mux, http.MethodPost, "/log-intervention", body)

			Convey("Then the issued timestamp should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				resp := decode(w)
				So(resp["message"], ShouldEqual, "Intervention logged successfully")
				So(resp["timestamp"], ShouldEqual, "2024-05-01T09:30:00.123456")
				So(deps.logged, ShouldResemble, []string{"High", "Counseling"})
				So(deps.gotVector.Attendance, ShouldEqual, 85.0)
			})
		})

		Convey("When the intervention is missing its tier", func() {
			body := strings.TrimSuffix(studentJSON, "}") + `,"intervention_taken":"Counseling"}`
			w := do(mux, http.MethodPost, "/log-intervention", body)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(decode(w)["message"], ShouldContainSubstring, "risk_level")
			So(deps.logged, ShouldBeEmpty)
		})

		Convey("When the store fails on log", func() {
			deps.logErr = errors.New("disk full")
			body := strings.TrimSuffix(studentJSON, "}") + `,"risk_level":"Low","intervention_taken":"None"}`
			So(do(mux, http.MethodPost, "/log-intervention", body).Code, ShouldEqual, http.StatusInternalServerError)
		})

		Convey("When an outcome is updated", func() {
			w := do(mux, http.MethodPost, "/update-outcome", `{"timestamp":"2024-05-01T09:30:00.123456","outcome":"Improved"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["message"], ShouldEqual, "Outcome updated successfully")
			So(deps.updated, ShouldResemble, [][2]string{{"2024-05-01T09:30:00.123456", "Improved"}})
		})

		Convey("When the store does not exist yet", func() {
			deps.updateErr = fmt.Errorf("update: %w", repository.ErrStoreNotFound)
			w := do(mux, http.MethodPost, "/update-outcome", `{"timestamp":"x","outcome":"Improved"}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode(w)["message"], ShouldEqual, "No intervention data found")
		})

		Convey("When the timestamp is unknown", func() {
			deps.updateErr = repository.ErrRecordNotFound
			w := do(mux, http.MethodPost, "/update-outcome", `{"timestamp":"x","outcome":"Improved"}`)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			So(decode(w)["message"], ShouldEqual, "Record not found")
		})

		Convey("When the outcome is missing", func() {
			w := do(mux, http.MethodPost, "/update-outcome", `{"timestamp":"x"}`)
			So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			So(deps.updated, ShouldBeEmpty)
		})

		Convey("When the log is listed", func() {
			deps.records = []model.InterventionRecord{{Timestamp: "t1", RiskLevel: "High", InterventionTaken: "Counseling"}}
			w := do(mux, http.MethodGet, "/interventions", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var recs []model.InterventionRecord
			So(json.Unmarshal(w.Body.Bytes(), &recs), ShouldBeNil)
			So(recs, ShouldResemble, deps.records)
		})
	})
}

func TestAnalyticsEndpoints(t *testing.T) {
	Convey("Given the aggregate endpoints", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When there is no data", func() {
			deps.validation = types.ValidationSummary{Message: "No validation data available"}
			deps.dashboard = types.DashboardSummary{Message: "No data available"}

			Convey("Then the sentinel messages should be returned with 200", func() {
				w := do(mux, http.MethodGet, "/validation-metrics", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w), ShouldResemble, map[string]any{"message": "No validation data available"})

				w = do(mux, http.MethodGet, "/dashboard", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w), ShouldResemble, map[string]any{"message": "No data available"})
			})
		})

		Convey("When outcomes have been recorded", func() {
			high, rest := 100.0, 0.0
			deps.validation = types.ValidationSummary{HighRiskDropoutRate: &high, NonHighRiskDropoutRate: &rest, TotalValidatedCases: 2}
			deps.dashboard = types.DashboardSummary{
				TotalLogs:        2,
				RiskDistribution: map[string]int{"High": 1, "Low": 1},
			}

			Convey("Then the rates and tables should be returned", func() {
				v := decode(do(mux, http.MethodGet, "/validation-metrics", ""))
				So(v["high_risk_dropout_rate"], ShouldEqual, 100.0)
				So(v["non_high_risk_dropout_rate"], ShouldEqual, 0.0)
				So(v["total_validated_cases"], ShouldEqual, 2.0)

				d := decode(do(mux, http.MethodGet, "/dashboard", ""))
				So(d["total_logs"], ShouldEqual, 2.0)
				So(d["risk_distribution"], ShouldResemble, map[string]any{"High": 1.0, "Low": 1.0})
				So(d["outcome_distribution"], ShouldResemble, map[string]any{})
			})
		})

		Convey("When the store cannot be read", func() {
			deps.recordsErr = errors.New("io error")
			So(do(mux, http.MethodGet, "/dashboard", "").Code, ShouldEqual, http.StatusInternalServerError)
			So(do(mux, http.MethodGet, "/validation-metrics", "").Code, ShouldEqual, http.StatusInternalServerError)
			So(do(mux, http.MethodGet, "/interventions", "").Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given a handler behind request-ID and CORS middleware", t, func() {
		var seenID string
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID = api.RequestID(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		Convey("When no request ID is supplied", func() {
			w := httptest.NewRecorder()
			api.RequestIDMiddleware(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			So(seenID, ShouldNotBeEmpty)
			So(w.Header().Get(api.RequestIDHeader), ShouldEqual, seenID)
		})

		Convey("When the caller supplies one", func() {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(api.RequestIDHeader, "abc-123")
			api.RequestIDMiddleware(inner).ServeHTTP(httptest.NewRecorder(), req)
			So(seenID, ShouldEqual, "abc-123")
		})

		Convey("When any origin is allowed", func() {
			h := api.CORSMiddleware([]string{"*"})(inner)

			Convey("Then a preflight should be answered directly", func() {
				req := httptest.NewRequest(http.MethodOptions, "/predict", nil)
				req.Header.Set("Origin", "http://localhost:5500")
				req.Header.Set("Access-Control-Request-Method", "POST")
				req.Header.Set("Access-Control-Request-Headers", "content-type")
				w := httptest.NewRecorder()
				h.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "http://localhost:5500")
				So(w.Header().Get("Access-Control-Allow-Headers"), ShouldEqual, "content-type")
				So(seenID, ShouldBeEmpty)
			})

			Convey("Then a simple request should pass through with headers", func() {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Header.Set("Origin", "http://example.org")
				w := httptest.NewRecorder()
				h.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "http://example.org")
			})
		})

		Convey("When only listed origins are allowed", func() {
			h := api.CORSMiddleware([]string{"https://school.example"})(inner)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", "https://evil.example")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldBeEmpty)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("boom")
		err := api.WrapKind("api.op", api.ErrValidation, cause)

		So(errors.Is(err, api.ErrValidation), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(err.Error(), ShouldEqual, "api.op: validation error: boom")
		So(api.Wrap("api.op", nil), ShouldBeNil)
		So(api.Wrap("api.op", cause).Error(), ShouldEqual, "api.op: boom")
		So(errors.Is(api.Wrap("outer", err), api.ErrValidation), ShouldBeTrue)
		So(errors.Is(api.WrapKind("api.op", api.ErrInternal, cause), api.ErrValidation), ShouldBeFalse)
	})
}

func TestRequestLogging(t *testing.T) {
	Convey("Given a server logging to a buffer behind the request-ID middleware", t, func() {
		var buf bytes.Buffer
		So(logger.Init(logger.WithOutput(&buf)), ShouldBeNil)

		deps := &mockDependencies{}
		server := api.NewServer(deps, nil, api.WithLogger(logger.Get()))
		mux := http.NewServeMux()
		server.Register(context.Background(), mux)
		h := api.RequestIDMiddleware(mux)

		send := func(path, body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
			req.Header.Set(api.RequestIDHeader, "trace-42")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			return w
		}

		Convey("When scoring fails", func() {
			deps.predictErr = errors.New("classifier unavailable")
			w := send("/predict", studentJSON)

			Convey("Then the error line should carry the request ID and the op", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decode(w)["message"], ShouldEqual, "classifier unavailable")
				out := buf.String()
				So(out, ShouldContainSubstring, "request_id=trace-42")
				So(out, ShouldContainSubstring, "api.HandlePredict: internal error: classifier unavailable")
			})
		})

		Convey("When the store fails on update", func() {
			deps.updateErr = errors.New("disk full")
			w := send("/update-outcome", `{"timestamp":"t1","outcome":"Improved"}`)

			Convey("Then the error line should carry the request ID and the timestamp", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				out := buf.String()
				So(out, ShouldContainSubstring, "request_id=trace-42")
				So(out, ShouldContainSubstring, "timestamp=t1")
			})
		})

		Convey("When the outcome target is unknown", func() {
			deps.updateErr = repository.ErrRecordNotFound
			w := send("/update-outcome", `{"timestamp":"t9","outcome":"Improved"}`)

			Convey("Then the miss should be logged with the request ID", func() {
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(buf.String(), ShouldContainSubstring, "request_id=trace-42")
				So(buf.String(), ShouldContainSubstring, "outcome target missing")
			})
		})
	})
}
