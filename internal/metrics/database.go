package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database metrics
var (
	// DBConnectionsOpen is the total number of open connections to the database
	DBConnectionsOpen = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Total number of open database connections",
		},
	)

	// DBConnectionsInUse is the number of database connections currently in use
	DBConnectionsInUse = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_in_use",
			Help:      "Number of database connections currently in use (acquired)",
		},
	)

	// DBConnectionsIdle is the number of idle database connections
	DBConnectionsIdle = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
	)

	// DBConnectionsMaxOpen is the maximum number of open database connections
	DBConnectionsMaxOpen = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_max_open",
			Help:      "Maximum number of open database connections allowed",
		},
	)
)

// PoolStats is a driver-neutral snapshot of a connection pool.
type PoolStats struct {
	Open    int
	InUse   int
	Idle    int
	MaxOpen int
}

// DBCollector periodically copies pool statistics into the gauges above.
// The stats function adapts whichever backend is in use (sql.DB.Stats or
// pgxpool.Pool.Stat).
type DBCollector struct {
	stats    func() PoolStats
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewDBCollector(stats func() PoolStats) *DBCollector {
	return &DBCollector{
		stats:    stats,
		stopChan: make(chan struct{}),
	}
}

// Start collects immediately and then every interval until ctx is done or
// Stop is called. It blocks; run it in its own goroutine.
func (c *DBCollector) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.collect()
	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *DBCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *DBCollector) collect() {
	if c.stats == nil {
		return
	}
	s := c.stats()
	DBConnectionsOpen.Set(float64(s.Open))
	DBConnectionsInUse.Set(float64(s.InUse))
	DBConnectionsIdle.Set(float64(s.Idle))
	DBConnectionsMaxOpen.Set(float64(s.MaxOpen))
}
