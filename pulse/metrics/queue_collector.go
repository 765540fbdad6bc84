package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DepthSource reports how many jobs sit in each status
type DepthSource interface {
	Depths(ctx context.Context) (map[string]int, error)
}

// queueCollector reads queue depth from the database at scrape time
type queueCollector struct {
	source  DepthSource
	timeout time.Duration
	depth   *prometheus.Desc
	up      *prometheus.Desc
}

// WatchQueue registers a scrape-time collector for queue depth per status
func (c *Collector) WatchQueue(source DepthSource) error {
	if c == nil {
		return nil
	}
	return c.reg.Register(&queueCollector{
		source:  source,
		timeout: 5 * time.Second,
		depth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "jobs"),
			"Jobs currently stored, by status",
			[]string{"status"},
			nil,
		),
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "scrape_ok"),
			"Whether the last queue depth read succeeded (1=yes, 0=no)",
			nil,
			nil,
		),
	})
}

func (q *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- q.depth
	ch <- q.up
}

func (q *queueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	depths, err := q.source.Depths(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(q.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(q.up, prometheus.GaugeValue, 1)
	for status, n := range depths {
		ch <- prometheus.MustNewConstMetric(q.depth, prometheus.GaugeValue, float64(n), status)
	}
}
