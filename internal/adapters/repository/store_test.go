package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/okian/dropwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func testRecord(ts, risk string) model.InterventionRecord {
	return model.InterventionRecord{
		Timestamp: ts,
		FeatureVector: model.FeatureVector{
			Attendance:     72.5,
			InternalMarks:  61,
			QuizScore:      7,
			LoginFrequency: 14,
			FinancialIssue: 1,
			BacklogCount:   2,
		},
		RiskLevel:         risk,
		InterventionTaken: "Counseling",
	}
}

// storeFactories builds a fresh, empty instance of every local backend.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"csv": func() Store {
			return NewCSVStore(filepath.Join(t.TempDir(), "data", "interventions.csv"))
		},
		"sqlite": func() Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "log.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range storeFactories(t) {
		Convey("Given an empty "+name+" store", t, func() {
			s := newStore()

			Convey("When reading it", func() {
				recs, err := s.All(ctx)

				Convey("Then it should be empty, not nil", func() {
					So(err, ShouldBeNil)
					So(recs, ShouldNotBeNil)
					So(recs, ShouldHaveLength, 0)
				})
			})

			Convey("When updating an outcome", func() {
				err := s.UpdateOutcome(ctx, "2024-01-01T00:00:00.000000", "Improved")

				Convey("Then the store should be reported absent", func() {
					So(errors.Is(err, ErrStoreNotFound), ShouldBeTrue)
				})
			})

			Convey("When records are appended", func() {
				So(s.Append(ctx, testRecord("2024-01-01T00:00:00.000001", "High")), ShouldBeNil)
				So(s.Append(ctx, testRecord("2024-01-01T00:00:00.000002", "Low")), ShouldBeNil)
				So(s.Append(ctx, testRecord("2024-01-01T00:00:00.000003", "Medium")), ShouldBeNil)

				Convey("Then they should read back in append order", func() {
					recs, err := s.All(ctx)
					So(err, ShouldBeNil)
					So(recs, ShouldHaveLength, 3)
					So(recs[0].RiskLevel, ShouldEqual, "High")
					So(recs[2].RiskLevel, ShouldEqual, "Medium")
					So(recs[1], ShouldResemble, testRecord("2024-01-01T00:00:00.000002", "Low"))
				})

				Convey("And an outcome is updated", func() {
					err := s.UpdateOutcome(ctx, "2024-01-01T00:00:00.000002", "Improved")
					So(err, ShouldBeNil)

					Convey("Then only that record should change", func() {
						recs, _ := s.All(ctx)
						So(recs[0].Outcome, ShouldEqual, "")
						So(recs[1].Outcome, ShouldEqual, "Improved")
						So(recs[2].Outcome, ShouldEqual, "")
					})
				})

				Convey("And an unknown timestamp is updated", func() {
					before, _ := s.All(ctx)
					err := s.UpdateOutcome(ctx, "2024-01-01T00:00:00.000009", "Improved")

					Convey("Then the store should be unchanged", func() {
						So(errors.Is(err, ErrRecordNotFound), ShouldBeTrue)
						after, _ := s.All(ctx)
						So(after, ShouldResemble, before)
					})
				})

				Convey("And a timestamp is matched only by prefix", func() {
					err := s.UpdateOutcome(ctx, "2024-01-01T00:00:00", "Improved")
					So(errors.Is(err, ErrRecordNotFound), ShouldBeTrue)
				})
			})

			Convey("When many goroutines append concurrently", func() {
				var wg sync.WaitGroup
				errs := make(chan error, 20)
				for i := range 20 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						errs <- s.Append(ctx, testRecord(fmt.Sprintf("2024-01-01T00:00:01.%06d", i), "Low"))
					}()
				}
				wg.Wait()
				close(errs)

				Convey("Then no write should be lost", func() {
					for err := range errs {
						So(err, ShouldBeNil)
					}
					recs, err := s.All(ctx)
					So(err, ShouldBeNil)
					So(recs, ShouldHaveLength, 20)
				})
			})
		})
	}
}

func TestOpen(t *testing.T) {
	Convey("Given the store drivers", t, func() {
		ctx := context.Background()

		s, err := Open(ctx, DriverMemory, "")
		So(err, ShouldBeNil)
		So(s, ShouldHaveSameTypeAs, &MemoryStore{})

		s, err = Open(ctx, DriverCSV, filepath.Join(t.TempDir(), "x.csv"))
		So(err, ShouldBeNil)
		So(s, ShouldHaveSameTypeAs, &CSVStore{})

		s, err = Open(ctx, "mongo", "")
		So(s, ShouldBeNil)
		So(errors.Is(err, ErrUnknownDriver), ShouldBeTrue)
	})
}
