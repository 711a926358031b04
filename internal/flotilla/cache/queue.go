package cache

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/flotillaproject/flotilla/internal/common/util"
	"github.com/flotillaproject/flotilla/internal/flotilla/metrics"
	"github.com/flotillaproject/flotilla/internal/flotilla/repository"
)

// QueueCache refreshes queue statistics out of band so metric scrapes and
// wait-time queries never fan out over Redis themselves. Queues are
// discovered from advertisements and from the queues agents report serving.
type QueueCache struct {
	jobRepository   repository.JobRepository
	agentRepository repository.AgentRepository
	statsRepository repository.StatsRepository

	refreshMutex sync.Mutex
	queueMetrics []*metrics.QueueMetrics
}

func NewQueueCache(
	jobRepository repository.JobRepository,
	agentRepository repository.AgentRepository,
	statsRepository repository.StatsRepository,
) *QueueCache {
	return &QueueCache{
		jobRepository:   jobRepository,
		agentRepository: agentRepository,
		statsRepository: statsRepository,
	}
}

// Refresh rebuilds the snapshot. On failure the previous snapshot stays
// in place.
func (c *QueueCache) Refresh() {
	ctx := context.Background()

	advertised, err := c.agentRepository.GetAdvertisedQueues(ctx)
	if err != nil {
		log.Errorf("Error while refreshing queue cache: %v", err)
		return
	}
	agents, err := c.agentRepository.GetAgents(ctx)
	if err != nil {
		log.Errorf("Error while refreshing queue cache: %v", err)
		return
	}

	agentCounts := map[string]int{}
	availableCounts := map[string]int{}
	names := make([]string, 0, len(advertised))
	for name := range advertised {
		names = append(names, name)
	}
	for _, agent := range agents {
		for _, queue := range agent.Queues {
			names = append(names, queue)
			agentCounts[queue]++
			if agent.State == "waiting" {
				availableCounts[queue]++
			}
		}
	}
	queues := util.Unique(names)

	sizes, err := c.jobRepository.GetQueueSizes(ctx, queues)
	if err != nil {
		log.Errorf("Error while refreshing queue cache: %v", err)
		return
	}

	queueMetrics := make([]*metrics.QueueMetrics, 0, len(queues))
	for _, queue := range queues {
		samples, err := c.statsRepository.GetQueueWaitSamples(ctx, queue)
		if err != nil {
			log.Errorf("Error while refreshing wait samples of queue %s: %v", queue, err)
			continue
		}
		queueMetrics = append(queueMetrics, &metrics.QueueMetrics{
			Queue:           queue,
			Size:            sizes[queue],
			Agents:          agentCounts[queue],
			AgentsAvailable: availableCounts[queue],
			WaitSamples:     samples,
		})
	}

	c.refreshMutex.Lock()
	defer c.refreshMutex.Unlock()
	c.queueMetrics = queueMetrics
}

func (c *QueueCache) GetQueueMetrics() []*metrics.QueueMetrics {
	c.refreshMutex.Lock()
	defer c.refreshMutex.Unlock()
	return c.queueMetrics
}

// GetQueueWaitTimes returns wait percentiles per queue from the snapshot.
func (c *QueueCache) GetQueueWaitTimes() map[string]map[int]float64 {
	waitTimes := map[string]map[int]float64{}
	for _, m := range c.GetQueueMetrics() {
		waitTimes[m.Queue] = metrics.Percentiles(m.WaitSamples, metrics.DefaultPercentiles)
	}
	return waitTimes
}
