package task

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BackgroundTaskManager runs registered functions on fixed intervals and
// records a latency histogram per task. Register everything from one
// goroutine during startup; only StopAll is safe to call later.
type BackgroundTaskManager struct {
	metricsPrefix string
	stops         []chan struct{}
	wg            sync.WaitGroup
}

func NewBackgroundTaskManager(prefix string) *BackgroundTaskManager {
	return &BackgroundTaskManager{metricsPrefix: prefix}
}

// Register runs fn once right away and then again every interval until
// StopAll is called. Each run is observed under
// <prefix><metricName>_latency_seconds.
func (m *BackgroundTaskManager) Register(fn func(), interval time.Duration, metricName string) {
	histogram := promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    m.metricsPrefix + metricName + "_latency_seconds",
		Help:    "Latency of the " + metricName + " background loop in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
	})

	stop := make(chan struct{})
	m.stops = append(m.stops, stop)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		timed := func() {
			start := time.Now()
			fn()
			histogram.Observe(time.Since(start).Seconds())
		}
		timed()
		for {
			select {
			case <-stop:
				return
			case <-time.After(interval):
				timed()
			}
		}
	}()
}

// StopAll signals every loop to exit and waits up to timeout for in-flight
// runs to finish. It reports whether the wait timed out.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	for _, stop := range m.stops {
		close(stop)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()
	select {
	case <-done:
		return false
	case <-time.After(timeout):
		return true
	}
}
