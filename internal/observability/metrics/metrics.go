package metrics

import "github.com/prometheus/client_golang/prometheus"

// ClinicMetrics exposes counters/histograms for the clinic workflows.
type ClinicMetrics struct {
	statusTransitions   *prometheus.CounterVec
	authAttempts        *prometheus.CounterVec
	prescriptionCreates *prometheus.CounterVec
	rateLimited         *prometheus.CounterVec
	requestLatency      *prometheus.HistogramVec
}

func NewClinicMetrics(reg prometheus.Registerer) *ClinicMetrics {
	m := &ClinicMetrics{
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "appointments",
			Name:      "status_transitions_total",
			Help:      "Appointment status change attempts",
		}, []string{"from", "to", "result"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"result"}),
		prescriptionCreates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "prescriptions",
			Name:      "create_total",
			Help:      "Prescription issuance attempts",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}, []string{"limiter"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicdesk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.statusTransitions, m.authAttempts, m.prescriptionCreates, m.rateLimited, m.requestLatency)
	return m
}

func (m *ClinicMetrics) ObserveTransition(from, to, result string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(from, to, result).Inc()
}

func (m *ClinicMetrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(result).Inc()
}

func (m *ClinicMetrics) ObservePrescription(result string) {
	if m == nil {
		return
	}
	m.prescriptionCreates.WithLabelValues(result).Inc()
}

func (m *ClinicMetrics) ObserveRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(limiter).Inc()
}

func (m *ClinicMetrics) ObserveRequest(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(method, status).Observe(seconds)
}
