package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const MetricPrefix = "flotilla_"

// QueueMetrics is one queue's refreshed view for the collectors.
type QueueMetrics struct {
	Queue           string
	Size            int64
	Agents          int
	AgentsAvailable int
	WaitSamples     []float64
}

// QueueMetricProvider serves pre-computed queue metrics. Implementations
// refresh out of band so scrapes stay cheap.
type QueueMetricProvider interface {
	GetQueueMetrics() []*QueueMetrics
}

var queueSizeDesc = prometheus.NewDesc(
	MetricPrefix+"queue_size",
	"Number of claimable jobs waiting in the queue",
	[]string{"queueName"},
	nil,
)

var queueAgentsDesc = prometheus.NewDesc(
	MetricPrefix+"queue_agents",
	"Number of agents serving the queue",
	[]string{"queueName"},
	nil,
)

var queueAgentsAvailableDesc = prometheus.NewDesc(
	MetricPrefix+"queue_agents_available",
	"Number of agents serving the queue that are waiting for work",
	[]string{"queueName"},
	nil,
)

var queueWaitDesc = prometheus.NewDesc(
	MetricPrefix+"queue_wait_seconds",
	"Time jobs spent waiting in the queue before being claimed",
	[]string{"queueName"},
	nil,
)

type QueueInfoCollector struct {
	provider QueueMetricProvider
}

func NewQueueInfoCollector(provider QueueMetricProvider) *QueueInfoCollector {
	return &QueueInfoCollector{provider: provider}
}

// ExposeQueueMetrics registers a collector over provider with the default
// prometheus registry.
func ExposeQueueMetrics(provider QueueMetricProvider) *QueueInfoCollector {
	collector := NewQueueInfoCollector(provider)
	prometheus.MustRegister(collector)
	return collector
}

func (c *QueueInfoCollector) Describe(desc chan<- *prometheus.Desc) {
	desc <- queueSizeDesc
	desc <- queueAgentsDesc
	desc <- queueAgentsAvailableDesc
	desc <- queueWaitDesc
}

func (c *QueueInfoCollector) Collect(out chan<- prometheus.Metric) {
	for _, m := range c.provider.GetQueueMetrics() {
		out <- prometheus.MustNewConstMetric(queueSizeDesc, prometheus.GaugeValue, float64(m.Size), m.Queue)
		out <- prometheus.MustNewConstMetric(queueAgentsDesc, prometheus.GaugeValue, float64(m.Agents), m.Queue)
		out <- prometheus.MustNewConstMetric(queueAgentsAvailableDesc, prometheus.GaugeValue, float64(m.AgentsAvailable), m.Queue)
		out <- waitSummary(m.Queue, m.WaitSamples)
	}
}

func waitSummary(queue string, samples []float64) prometheus.Metric {
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	quantiles := map[float64]float64{}
	for p, v := range Percentiles(samples, DefaultPercentiles) {
		quantiles[float64(p)/100] = v
	}
	return prometheus.MustNewConstSummary(queueWaitDesc, uint64(len(samples)), sum, quantiles, queue)
}
