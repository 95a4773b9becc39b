package prometheus

import (
	"time"
)

// Engine operation label values.
const (
	OpFingerprint = "fingerprint"
	OpLookup      = "lookup"
	OpSMARTS      = "smarts"
)

// RunMetrics holds the metrics of one lookup run.
type RunMetrics struct {
	MoleculesReadTotal        CounterVec
	FeatureLinesTotal         CounterVec
	IndexInconsistenciesTotal CounterVec
	EngineRequestDuration     HistogramVec
	EngineErrorsTotal         CounterVec
	RunDurationSeconds        GaugeVec
	RunSuccess                GaugeVec
	LastRunTimestamp          GaugeVec
}

// DefaultEngineDurationBuckets spans fast local engines to slow remote ones.
var DefaultEngineDurationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// NewRunMetrics registers all run metrics on collector.
func NewRunMetrics(collector MetricsCollector) *RunMetrics {
	m := &RunMetrics{}

	m.MoleculesReadTotal = collector.RegisterCounter("molecules_read_total", "Molecules read from the input stream", "format")
	m.FeatureLinesTotal = collector.RegisterCounter("feature_lines_total", "Feature occurrence lines written")
	m.IndexInconsistenciesTotal = collector.RegisterCounter("index_inconsistencies_total", "Fingerprint identifiers with no occurrence in the lookup index")
	m.EngineRequestDuration = collector.RegisterHistogram("engine_request_duration_seconds", "Engine call duration", DefaultEngineDurationBuckets, "operation")
	m.EngineErrorsTotal = collector.RegisterCounter("engine_errors_total", "Failed engine calls", "operation")
	m.RunDurationSeconds = collector.RegisterGauge("run_duration_seconds", "Wall time of the last run")
	m.RunSuccess = collector.RegisterGauge("run_success", "Outcome of the last run (1=success, 0=failure)")
	m.LastRunTimestamp = collector.RegisterGauge("last_run_timestamp_seconds", "Unix time the last run finished")

	return m
}

// Helpers.  All of them accept a nil *RunMetrics so callers can run without
// metrics.

func RecordMoleculeRead(metrics *RunMetrics, format string) {
	if metrics == nil {
		return
	}
	metrics.MoleculesReadTotal.WithLabelValues(format).Inc()
}

func RecordFeatureLine(metrics *RunMetrics) {
	if metrics == nil {
		return
	}
	metrics.FeatureLinesTotal.WithLabelValues().Inc()
}

func RecordInconsistency(metrics *RunMetrics) {
	if metrics == nil {
		return
	}
	metrics.IndexInconsistenciesTotal.WithLabelValues().Inc()
}

// StartEngineCall starts timing one engine call of operation.
func StartEngineCall(metrics *RunMetrics, operation string) *Timer {
	if metrics == nil {
		return NewTimer(nil)
	}
	return NewTimer(metrics.EngineRequestDuration.WithLabelValues(operation))
}

// RecordEngineCall stops timer, counts a failed call and returns the elapsed
// time.
func RecordEngineCall(metrics *RunMetrics, operation string, timer *Timer, err error) time.Duration {
	d := timer.ObserveDuration()
	if metrics != nil && err != nil {
		metrics.EngineErrorsTotal.WithLabelValues(operation).Inc()
	}
	return d
}

func RecordRunEnd(metrics *RunMetrics, duration time.Duration, err error) {
	if metrics == nil {
		return
	}
	metrics.RunDurationSeconds.WithLabelValues().Set(duration.Seconds())
	success := 1.0
	if err != nil {
		success = 0
	}
	metrics.RunSuccess.WithLabelValues().Set(success)
	metrics.LastRunTimestamp.WithLabelValues().SetToCurrentTime()
}
