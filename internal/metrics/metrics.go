// Package metrics provides Prometheus instrumentation for qsp operations.
// The CLI is short-lived, so metrics are exported by writing a node_exporter
// textfile instead of serving an endpoint.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all qsp metrics
	Namespace = "qsp"

	// Label names
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelReason    = "reason"
	LabelResult    = "result"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpIdentity      = "identity"
	OpSetup         = "setup"
	OpLock          = "lock"
	OpUnlock        = "unlock"
	OpEmbed         = "embed"
	OpExtract       = "extract"
	OpSplit         = "split"
	OpReconstruct   = "reconstruct"
	OpSign          = "sign"
	OpThresholdSign = "threshold_sign"

	// Share rejection reasons
	ReasonUnregistered = "unregistered"
	ReasonExtract      = "extract_failed"
	ReasonDecode       = "decode_failed"
	ReasonFingerprint  = "fingerprint_mismatch"
	ReasonIdentity     = "missing_identity"
	ReasonSignature    = "signature_invalid"

	// Signing attempt results
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)

var (
	// OperationsTotal tracks operations by type and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of qsp operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks the duration of operations in seconds.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of qsp operations in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{LabelOperation},
	)

	// SharesRejectedTotal tracks stego carriers excluded during unlock.
	SharesRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "shares_rejected_total",
			Help:      "Total number of shares excluded during unlock by reason",
		},
		[]string{LabelReason},
	)

	// SignAttemptsTotal tracks threshold signing attempts.
	SignAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sign_attempts_total",
			Help:      "Total number of threshold signing attempts by result",
		},
		[]string{LabelResult},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// Enable turns metrics collection on
func Enable() { enabled.Store(true) }

// Disable turns metrics collection off
func Disable() { enabled.Store(false) }

// IsEnabled reports whether metrics are being collected
func IsEnabled() bool { return enabled.Load() }

// RecordOperation records an operation with its duration and status.
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// Track records operation with the status derived from *errp. Use with defer:
//
//	defer metrics.Track(metrics.OpLock, time.Now(), &err)
func Track(operation string, start time.Time, errp *error) {
	status := StatusSuccess
	if errp != nil && *errp != nil {
		status = StatusError
	}
	RecordOperation(operation, status, time.Since(start).Seconds())
}

// RecordShareRejected counts one excluded share.
func RecordShareRejected(reason string) {
	if !enabled.Load() {
		return
	}
	SharesRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordSignAttempts counts a finished threshold signing session that took
// attempts tries. All but the last were rejected; the last is accepted when
// ok is true.
func RecordSignAttempts(attempts int, ok bool) {
	if !enabled.Load() || attempts <= 0 {
		return
	}
	rejected := attempts - 1
	if !ok {
		rejected = attempts
	} else {
		SignAttemptsTotal.WithLabelValues(ResultAccepted).Inc()
	}
	SignAttemptsTotal.WithLabelValues(ResultRejected).Add(float64(rejected))
}

// WriteTextfile writes the default registry in the node_exporter textfile
// format. The file is written atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
