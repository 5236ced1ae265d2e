package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetricsOptions configures the decision metric collectors.
type EngineMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// EngineMetrics exposes Prometheus collectors for access decisions.
type EngineMetrics struct {
	SessionsCreated    prometheus.Counter
	AccessChecks       *prometheus.CounterVec
	ActivationWarnings *prometheus.CounterVec
}

// NewEngineMetrics constructs and registers the decision collectors.
func NewEngineMetrics(opts EngineMetricsOptions) (*EngineMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "rbac"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	sessions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Total number of sessions created.",
	})
	if err := reg.Register(sessions); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(prometheus.Counter); ok {
				sessions = existing
			} else {
				return nil, fmt.Errorf("existing sessions collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register sessions collector: %w", err)
		}
	}

	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_checks_total",
		Help:      "Total number of access checks partitioned by decision.",
	}, []string{"decision"})
	if err := reg.Register(checks); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				checks = existing
			} else {
				return nil, fmt.Errorf("existing checks collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register checks collector: %w", err)
		}
	}

	warnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "activation_warnings_total",
		Help:      "Total number of roles dropped during activation partitioned by failure code.",
	}, []string{"code"})
	if err := reg.Register(warnings); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				warnings = existing
			} else {
				return nil, fmt.Errorf("existing warnings collector has unexpected type %T", already.ExistingCollector)
			}
		} else {
			return nil, fmt.Errorf("register warnings collector: %w", err)
		}
	}

	return &EngineMetrics{
		SessionsCreated:    sessions,
		AccessChecks:       checks,
		ActivationWarnings: warnings,
	}, nil
}

// SessionCreated increments the session counter.
func (m *EngineMetrics) SessionCreated() {
	if m == nil || m.SessionsCreated == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// AccessCheck records an access decision.
func (m *EngineMetrics) AccessCheck(granted bool) {
	if m == nil || m.AccessChecks == nil {
		return
	}
	decision := "denied"
	if granted {
		decision = "granted"
	}
	m.AccessChecks.WithLabelValues(decision).Inc()
}

// ActivationWarning records a dropped role by failure code.
func (m *EngineMetrics) ActivationWarning(code string) {
	if m == nil || m.ActivationWarnings == nil {
		return
	}
	m.ActivationWarnings.WithLabelValues(code).Inc()
}
