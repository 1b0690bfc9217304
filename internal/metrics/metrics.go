// Package metrics holds the Prometheus collectors of the events API.
//
// Everything registers on Registry rather than the global default registry,
// so /metrics exposes exactly what this package declares plus the Go and
// process collectors added by Init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "community_events"

// Registry is the Prometheus registry served on /metrics.
var Registry = prometheus.NewRegistry()

// AppInfo exposes build information as labels. The value is always 1.
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always 1, details in labels)",
	},
	[]string{"version", "commit", "build_date", "db_driver"},
)

// Init registers the runtime collectors and records build information.
// Call it once at startup.
func Init(version, commit, buildDate, dbDriver string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	AppInfo.WithLabelValues(version, commit, buildDate, dbDriver).Set(1)
}
