package repository

import (
	"time"

	"github.com/okian/dropwatch/pkg/metrics"
)

// observe records latency and outcome of a store call. Use with defer and a
// named error result.
func observe(backend, op string, start time.Time, err *error) {
	failed := err != nil && *err != nil
	metrics.RecordStoreOperation(backend, op, float64(time.Since(start).Microseconds())/1000, failed)
}
