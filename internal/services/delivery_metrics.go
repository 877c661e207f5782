// Package services – DeliveryMetrics
//
// DeliveryMetrics keeps cumulative counters for the delivery consumer and
// mirrors them to Prometheus. It is injected into DeliveryService rather than
// held in package state, so each test (or each process) owns its own set.
package services

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DeliveryStats is a point-in-time copy of DeliveryMetrics.
type DeliveryStats struct {
	Processed        int64      `json:"processed"`
	Sent             int64      `json:"sent"`
	Failed           int64      `json:"failed"`
	Retried          int64      `json:"retried"`
	DeadLettered     int64      `json:"deadLettered"`
	TotalProcessing  string     `json:"totalProcessingTime"`
	AvgProcessingMS  float64    `json:"avgProcessingMs"`
	LastSuccessAt    *time.Time `json:"lastSuccessAt,omitempty"`
	LastSuccessID    string     `json:"lastSuccessVoucherId,omitempty"`
	LastFailureAt    *time.Time `json:"lastFailureAt,omitempty"`
	LastFailureError string     `json:"lastFailureError,omitempty"`
}

// DeliveryMetrics is safe for concurrent use.
type DeliveryMetrics struct {
	mu               sync.Mutex
	processed        int64
	sent             int64
	failed           int64
	retried          int64
	deadLettered     int64
	total            time.Duration
	lastSuccessAt    time.Time
	lastSuccessID    string
	lastFailureAt    time.Time
	lastFailureError string

	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewDeliveryMetrics builds metrics and registers their collectors on reg.
// A nil reg keeps the counters in memory only.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	m := &DeliveryMetrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voucher_delivery_messages_total",
				Help: "Delivery messages handled, by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voucher_delivery_processing_seconds",
				Help:    "Time spent processing one delivery message.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.outcomes, m.duration)
	}
	return m
}

func (m *DeliveryMetrics) observe(outcome Outcome, d time.Duration) {
	m.mu.Lock()
	m.processed++
	m.total += d
	m.mu.Unlock()
	m.outcomes.WithLabelValues(string(outcome)).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *DeliveryMetrics) success(voucherID string, at time.Time) {
	m.mu.Lock()
	m.sent++
	m.lastSuccessAt = at
	m.lastSuccessID = voucherID
	m.mu.Unlock()
}

func (m *DeliveryMetrics) failure(reason string, at time.Time) {
	m.mu.Lock()
	m.failed++
	m.lastFailureAt = at
	m.lastFailureError = reason
	m.mu.Unlock()
}

func (m *DeliveryMetrics) retry(reason string, at time.Time) {
	m.mu.Lock()
	m.retried++
	m.lastFailureAt = at
	m.lastFailureError = reason
	m.mu.Unlock()
}

func (m *DeliveryMetrics) deadLetter() {
	m.mu.Lock()
	m.deadLettered++
	m.mu.Unlock()
}

// Snapshot returns the current counters.
func (m *DeliveryMetrics) Snapshot() DeliveryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := DeliveryStats{
		Processed:        m.processed,
		Sent:             m.sent,
		Failed:           m.failed,
		Retried:          m.retried,
		DeadLettered:     m.deadLettered,
		TotalProcessing:  m.total.String(),
		LastSuccessID:    m.lastSuccessID,
		LastFailureError: m.lastFailureError,
	}
	if m.processed > 0 {
		s.AvgProcessingMS = float64(m.total.Microseconds()) / 1000 / float64(m.processed)
	}
	if !m.lastSuccessAt.IsZero() {
		t := m.lastSuccessAt
		s.LastSuccessAt = &t
	}
	if !m.lastFailureAt.IsZero() {
		t := m.lastFailureAt
		s.LastFailureAt = &t
	}
	return s
}

// Reset zeroes the in-memory counters. Prometheus collectors are cumulative
// and are left alone.
func (m *DeliveryMetrics) Reset() {
	m.mu.Lock()
	m.processed, m.sent, m.failed, m.retried, m.deadLettered = 0, 0, 0, 0, 0
	m.total = 0
	m.lastSuccessAt, m.lastFailureAt = time.Time{}, time.Time{}
	m.lastSuccessID, m.lastFailureError = "", ""
	m.mu.Unlock()
}
