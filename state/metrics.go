package state

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters/gauges spec §7 requires: neighbor_up,
// neighbor_down, neighbor_restarting, advertise_adjacencies,
// advertise_links, thrift.failure.getAllLinks, and the adjacencies gauge.
// Registered on a private registry so repeated State construction in tests
// does not collide with prometheus's default global registry.
type Metrics struct {
	Registry *prometheus.Registry

	NeighborUp          prometheus.Counter
	NeighborDown        prometheus.Counter
	NeighborRestarting  prometheus.Counter
	AdvertiseAdjacencies prometheus.Counter
	AdvertiseLinks      prometheus.Counter
	ThriftFailureGetAllLinks prometheus.Counter
	Adjacencies         prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		NeighborUp: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkmon_neighbor_up_total",
			Help: "Total number of neighbor UP events processed",
		}),
		NeighborDown: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkmon_neighbor_down_total",
			Help: "Total number of neighbor DOWN events processed",
		}),
		NeighborRestarting: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkmon_neighbor_restarting_total",
			Help: "Total number of neighbor RESTARTING events processed",
		}),
		AdvertiseAdjacencies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkmon_advertise_adjacencies_total",
			Help: "Total number of adjacency database advertisements published",
		}),
		AdvertiseLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkmon_advertise_links_total",
			Help: "Total number of interface/prefix advertisements published",
		}),
		ThriftFailureGetAllLinks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkmon_thrift_failure_getalllinks_total",
			Help: "Total number of failed getAllLinks netlink snapshot calls",
		}),
		Adjacencies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkmon_adjacencies",
			Help: "Current number of adjacencies across all areas",
		}),
	}
	reg.MustRegister(m.NeighborUp, m.NeighborDown, m.NeighborRestarting,
		m.AdvertiseAdjacencies, m.AdvertiseLinks, m.ThriftFailureGetAllLinks, m.Adjacencies)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
