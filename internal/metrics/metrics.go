// Package metrics is the backend-neutral metrics facade used by the pipeline.
//
// Core code records through the Record* helpers; a binary picks a concrete
// Backend (Datadog, or none) at startup with SetBackend. Until then every call
// goes to a no-op backend, so tests and library callers never need setup.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are metric dimensions (e.g. {"step": "games", "status": "ok"}).
type Labels map[string]string

// Backend receives raw metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer events.
type Flusher interface {
	Flush() error
}

// Metric names. Backends switch on these; unknown names are ignored.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	BatchesTotal        = "etl_batches_total"
	HTTPRequestsTotal   = "etl_http_requests_total"
	HTTPErrorsTotal     = "etl_http_errors_total"
	HTTPRequestSeconds  = "etl_http_request_duration_seconds"
	HTTPResponseSeconds = "etl_http_response_duration_seconds"
	HTTPDownloadBytes   = "etl_http_download_bytes"
	DriftTotal          = "etl_schema_drift_total"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// no-op backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	current = b
	mu.Unlock()
}

func get() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Flush flushes the current backend if it buffers; otherwise it is a no-op.
func Flush() error {
	if f, ok := get().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordStep records one pipeline stage outcome and its duration.
func RecordStep(job, step string, err error, d time.Duration) {
	b := get()
	l := Labels{"job": job, "step": step, "status": status(err)}
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRecords counts rows of a kind (games, rosters, stats_<category>)
// written by a stage.
func RecordRecords(job, kind string, n int) {
	if n <= 0 {
		return
	}
	get().IncCounter(RecordsTotal, float64(n), Labels{"job": job, "kind": kind})
}

// RecordBatch counts one committed write batch.
func RecordBatch(job string) {
	get().IncCounter(BatchesTotal, 1, Labels{"job": job})
}

// RecordDrift counts a schema drift failure for category.
func RecordDrift(job, category string) {
	get().IncCounter(DriftTotal, 1, Labels{"job": job, "category": category})
}

// RecordHTTP records one upstream request.
//
// op names the endpoint family ("schedule", "roster", "people"). status is
// the HTTP status code, or 0 when no response was received. bytes < 0 means
// the body size is unknown and is not observed.
func RecordHTTP(job, op string, statusCode int, err error, reqDur, respDur time.Duration, bytes int64) {
	b := get()

	st := "unknown"
	if statusCode > 0 {
		st = strconv.Itoa(statusCode)
	}
	l := Labels{"job": job, "op": op, "status": st}

	b.IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || statusCode < 200 || statusCode > 299 {
		b.IncCounter(HTTPErrorsTotal, 1, l)
	}
	b.ObserveHistogram(HTTPRequestSeconds, reqDur.Seconds(), l)
	if respDur > 0 {
		b.ObserveHistogram(HTTPResponseSeconds, respDur.Seconds(), l)
	}
	if bytes >= 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(bytes), l)
	}
}
