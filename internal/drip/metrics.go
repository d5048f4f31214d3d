package drip

import (
	"github.com/ketowell/waitlist-manager/internal/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the drip campaign collectors.
type Metrics struct {
	SendsTotal      *prometheus.CounterVec
	EligibleMembers *prometheus.GaugeVec
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	Reconciled      prometheus.Counter
}

// NewMetrics registers the drip collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SendsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ketowell_drip_sends_total",
				Help: "Drip email send outcomes by email type, status and failure kind",
			},
			[]string{"email_type", "status", "kind"},
		),
		EligibleMembers: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ketowell_drip_eligible_members",
				Help: "Size of the eligibility set in the last run",
			},
			[]string{"email_type"},
		),
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ketowell_drip_runs_total",
				Help: "Drip runs by result",
			},
			[]string{"result"},
		),
		RunDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ketowell_drip_run_duration_seconds",
				Help:    "Wall clock duration of drip runs",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
		),
		Reconciled: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ketowell_drip_reconciled_attempts_total",
				Help: "Stale send attempts closed as unknown",
			},
		),
	}
}

func (m *Metrics) sent(et entity.EmailType) {
	if m == nil {
		return
	}
	m.SendsTotal.WithLabelValues(et.String(), string(entity.EmailSendSent), "").Inc()
}

func (m *Metrics) failed(et entity.EmailType, kind entity.FailureKind) {
	if m == nil {
		return
	}
	m.SendsTotal.WithLabelValues(et.String(), string(entity.EmailSendFailed), string(kind)).Inc()
}

func (m *Metrics) eligible(et entity.EmailType, n int) {
	if m == nil {
		return
	}
	m.EligibleMembers.WithLabelValues(et.String()).Set(float64(n))
}

func (m *Metrics) run(s *entity.DripRunSummary, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	if s != nil {
		m.RunDuration.Observe(s.Duration.Seconds())
		m.Reconciled.Add(float64(s.Reconciled))
	}
}
