// Package metrics defines Prometheus metrics for upload operations.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// sizeBuckets are exponential buckets for object size histograms (bytes).
var sizeBuckets = []float64{1024, 65536, 1048576, 5242880, 16777216, 67108864, 268435456, 1073741824}

// Metrics holds the collectors of one client. A zero registerer leaves the
// collectors unregistered but usable.
type Metrics struct {
	// UploadsTotal counts uploads by mode (single, multipart) and status.
	UploadsTotal *prometheus.CounterVec

	// UploadDuration observes upload latency in seconds by mode.
	UploadDuration *prometheus.HistogramVec

	// UploadSize observes uploaded object size in bytes by mode.
	UploadSize *prometheus.HistogramVec

	// PartsTotal counts part uploads by status.
	PartsTotal *prometheus.CounterVec

	// AbortsTotal counts abort attempts by status.
	AbortsTotal *prometheus.CounterVec

	// BytesUploadedTotal counts bytes accepted by the service.
	BytesUploadedTotal prometheus.Counter
}

// New creates the collectors and registers them with reg when it is non-nil.
// Collectors already registered on reg are reused, so several clients may
// share one registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3upload_uploads_total",
				Help: "Uploads by mode and status",
			},
			[]string{"mode", "status"},
		),
		UploadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "s3upload_upload_duration_seconds",
				Help:    "Upload latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		UploadSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "s3upload_upload_size_bytes",
				Help:    "Uploaded object size in bytes",
				Buckets: sizeBuckets,
			},
			[]string{"mode"},
		),
		PartsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3upload_parts_total",
				Help: "Multipart part uploads by status",
			},
			[]string{"status"},
		),
		AbortsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "s3upload_aborts_total",
				Help: "Multipart abort attempts by status",
			},
			[]string{"status"},
		),
		BytesUploadedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "s3upload_bytes_uploaded_total",
				Help: "Total bytes accepted by the storage service",
			},
		),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.UploadsTotal, err = register(reg, m.UploadsTotal)
	if err != nil {
		return nil, err
	}
	m.UploadDuration, err = register(reg, m.UploadDuration)
	if err != nil {
		return nil, err
	}
	m.UploadSize, err = register(reg, m.UploadSize)
	if err != nil {
		return nil, err
	}
	m.PartsTotal, err = register(reg, m.PartsTotal)
	if err != nil {
		return nil, err
	}
	m.AbortsTotal, err = register(reg, m.AbortsTotal)
	if err != nil {
		return nil, err
	}
	m.BytesUploadedTotal, err = register(reg, m.BytesUploadedTotal)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveUpload records the outcome of one upload.
func (m *Metrics) ObserveUpload(mode string, size int64, started time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.UploadsTotal.WithLabelValues(mode, status).Inc()
	m.UploadDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
	if err == nil {
		m.UploadSize.WithLabelValues(mode).Observe(float64(size))
		m.BytesUploadedTotal.Add(float64(size))
	}
}

// ObservePart records the outcome of one part upload.
func (m *Metrics) ObservePart(err error) {
	if err != nil {
		m.PartsTotal.WithLabelValues(StatusError).Inc()
		return
	}
	m.PartsTotal.WithLabelValues(StatusSuccess).Inc()
}

// ObserveAbort records the outcome of one abort attempt.
func (m *Metrics) ObserveAbort(err error) {
	if err != nil {
		m.AbortsTotal.WithLabelValues(StatusError).Inc()
		return
	}
	m.AbortsTotal.WithLabelValues(StatusSuccess).Inc()
}
