package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector of this process. A dedicated registry keeps
// tests independent of the global default one.
var Registry = prometheus.NewRegistry()

var (
	RosterEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roster",
		Name:      "events_total",
		Help:      "Change events reconciled into the roster, by kind and outcome",
	}, []string{"kind", "outcome"})

	RosterSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "roster",
		Name:      "size",
		Help:      "Records currently held in the live roster",
	})

	MarkFound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "roster",
		Name:      "mark_found_total",
		Help:      "Optimistic mark-found attempts, by outcome",
	}, []string{"outcome"})

	MediaIngest = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media",
		Name:      "ingest_total",
		Help:      "Image ingestion attempts, by outcome",
	}, []string{"outcome"})
)

func init() {
	Registry.MustRegister(RosterEvents, RosterSize, MarkFound, MediaIngest)
}

// Handler serves the registry in the Prometheus exposition format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
