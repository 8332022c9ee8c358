// Package metrics holds the prometheus collectors for session and
// workspace resolution. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "teamspace"

// Resolver names used as the resolver label.
const (
	ResolverSession   = "session"
	ResolverWorkspace = "workspace"
)

// Metrics manages the metric information that teamspace is trying to measure.
type Metrics struct {
	registry *prometheus.Registry

	sessionResolutions      *prometheus.CounterVec
	workspaceResolutions    *prometheus.CounterVec
	resolveDuration         *prometheus.HistogramVec
	workspaceMutations      *prometheus.CounterVec
	profileReconciliations  *prometheus.CounterVec
	changeFeedNotifications prometheus.Counter
}

// New creates the collectors on a fresh registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		sessionResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_resolutions_total",
			Help:      "Session resolutions by outcome.",
		}, []string{"outcome"}),
		workspaceResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workspace_resolutions_total",
			Help:      "Workspace resolutions by outcome.",
		}, []string{"outcome"}),
		resolveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Time spent resolving the session or workspace.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resolver"}),
		workspaceMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workspace_mutations_total",
			Help:      "Join, create, and leave operations by outcome.",
		}, []string{"op", "outcome"}),
		profileReconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_reconciliations_total",
			Help:      "Profile reconciliations by outcome.",
		}, []string{"outcome"}),
		changeFeedNotifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "changefeed",
			Name:      "notifications_total",
			Help:      "Membership change notifications delivered to resolvers.",
		}),
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SessionResolved counts a finished session resolution.
func (m *Metrics) SessionResolved(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.sessionResolutions.WithLabelValues(outcome).Inc()
	m.resolveDuration.WithLabelValues(ResolverSession).Observe(took.Seconds())
}

// WorkspaceResolved counts a finished workspace resolution.
func (m *Metrics) WorkspaceResolved(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.workspaceResolutions.WithLabelValues(outcome).Inc()
	m.resolveDuration.WithLabelValues(ResolverWorkspace).Observe(took.Seconds())
}

// WorkspaceMutation counts a join, create, or leave.
func (m *Metrics) WorkspaceMutation(op, outcome string) {
	if m == nil {
		return
	}
	m.workspaceMutations.WithLabelValues(op, outcome).Inc()
}

// ProfileReconciled counts a profile reconciliation.
func (m *Metrics) ProfileReconciled(outcome string) {
	if m == nil {
		return
	}
	m.profileReconciliations.WithLabelValues(outcome).Inc()
}

// ChangeFeedNotified counts a membership change delivered to a resolver.
func (m *Metrics) ChangeFeedNotified() {
	if m == nil {
		return
	}
	m.changeFeedNotifications.Inc()
}
