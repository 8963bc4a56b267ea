package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Alerting counts pipeline and delivery outcomes. All methods are nil-safe
// so components can run without metrics wired, as in unit tests.
type Alerting struct {
	eventsRecorded *prometheus.CounterVec
	rulesFired     prometheus.Counter
	suppressed     prometheus.Counter
	deliveries     *prometheus.CounterVec
	dropped        prometheus.Counter
}

// NewAlerting registers the alerting counters with the given registerer.
func NewAlerting(reg prometheus.Registerer) *Alerting {
	m := &Alerting{
		eventsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stride_audit_events_recorded_total",
			Help: "Audit events durably persisted, by action.",
		}, []string{"action"}),
		rulesFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stride_alert_rules_fired_total",
			Help: "Alert rules that matched and passed cooldown.",
		}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stride_alert_cooldown_suppressed_total",
			Help: "Matched firings suppressed by cooldown.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stride_alert_deliveries_total",
			Help: "Delivery attempts, by channel and status.",
		}, []string{"channel", "status"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stride_alert_dispatch_dropped_total",
			Help: "Firings dropped because the dispatch queue was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.eventsRecorded, m.rulesFired, m.suppressed, m.deliveries, m.dropped)
	}
	return m
}

func (m *Alerting) ObserveEventRecorded(action string) {
	if m == nil {
		return
	}
	m.eventsRecorded.WithLabelValues(action).Inc()
}

func (m *Alerting) ObserveRuleFired() {
	if m == nil {
		return
	}
	m.rulesFired.Inc()
}

func (m *Alerting) ObserveSuppressed() {
	if m == nil {
		return
	}
	m.suppressed.Inc()
}

func (m *Alerting) ObserveDelivery(channel, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, status).Inc()
}

func (m *Alerting) ObserveDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
