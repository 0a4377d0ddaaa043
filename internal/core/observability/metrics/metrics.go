package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "simcore"

// Metrics groups the simulation collectors. A nil *Metrics is valid and records
// nothing, so systems built without metrics need no guards.
type Metrics struct {
	TickDuration      prometheus.Histogram
	SystemDuration    *prometheus.HistogramVec
	ActiveContacts    prometheus.Gauge
	CollisionEvents   *prometheus.CounterVec
	Instabilities     prometheus.Counter
	QuadtreeRebuilds  prometheus.Counter
	NavGridRebuilds   prometheus.Counter
	PathCacheHits     prometheus.Counter
	PathCacheMisses   prometheus.Counter
	PathSearches      *prometheus.CounterVec
	PathExpansions    prometheus.Counter
	PendingPathSearch prometheus.Gauge
	FeedClients       prometheus.Gauge
	FeedDropped       prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent in one fixed simulation tick.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
		SystemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "system_duration_seconds",
			Help:      "Wall time spent per system per tick.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 14),
		}, []string{"system"}),
		ActiveContacts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_contacts",
			Help:      "Overlapping collider pairs after the last collision step.",
		}),
		CollisionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collision_events_total",
			Help:      "Collision events emitted, by kind.",
		}, []string{"kind"}),
		Instabilities: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "physics_instabilities_total",
			Help:      "Bodies frozen because of non-finite state.",
		}),
		QuadtreeRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quadtree_rebuilds_total",
			Help:      "Full spatial index reconstructions.",
		}),
		NavGridRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navgrid_rebuilds_total",
			Help:      "Navigation grid rebuilds triggered by static geometry changes.",
		}),
		PathCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_cache_hits_total",
			Help:      "Path queries answered from the cache.",
		}),
		PathCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_cache_misses_total",
			Help:      "Path queries that required a search.",
		}),
		PathSearches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_searches_total",
			Help:      "Completed path searches, by status.",
		}, []string{"status"}),
		PathExpansions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_node_expansions_total",
			Help:      "A* node expansions.",
		}),
		PendingPathSearch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "path_requests_pending",
			Help:      "Path requests waiting for a result.",
		}),
		FeedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_clients",
			Help:      "Connected websocket feed clients.",
		}),
		FeedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_dropped_total",
			Help:      "Tick summaries skipped for feed clients that fell behind.",
		}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.TickDuration, m.SystemDuration, m.ActiveContacts, m.CollisionEvents,
		m.Instabilities, m.QuadtreeRebuilds, m.NavGridRebuilds, m.PathCacheHits,
		m.PathCacheMisses, m.PathSearches, m.PathExpansions, m.PendingPathSearch,
		m.FeedClients, m.FeedDropped,
	}
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveSystem(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.SystemDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) SetActiveContacts(n int) {
	if m == nil {
		return
	}
	m.ActiveContacts.Set(float64(n))
}

func (m *Metrics) CollisionEvent(kind string) {
	if m == nil {
		return
	}
	m.CollisionEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) Instability() {
	if m == nil {
		return
	}
	m.Instabilities.Inc()
}

func (m *Metrics) QuadtreeRebuild() {
	if m == nil {
		return
	}
	m.QuadtreeRebuilds.Inc()
}

func (m *Metrics) NavGridRebuild() {
	if m == nil {
		return
	}
	m.NavGridRebuilds.Inc()
}

func (m *Metrics) PathCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.PathCacheHits.Inc()
		return
	}
	m.PathCacheMisses.Inc()
}

func (m *Metrics) PathSearch(status string, expansions int) {
	if m == nil {
		return
	}
	m.PathSearches.WithLabelValues(status).Inc()
	m.PathExpansions.Add(float64(expansions))
}

func (m *Metrics) SetPendingPaths(n int) {
	if m == nil {
		return
	}
	m.PendingPathSearch.Set(float64(n))
}

func (m *Metrics) SetFeedClients(n int) {
	if m == nil {
		return
	}
	m.FeedClients.Set(float64(n))
}

func (m *Metrics) FeedDrop() {
	if m == nil {
		return
	}
	m.FeedDropped.Inc()
}
