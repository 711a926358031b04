package flotilla

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/flotillaproject/flotilla/internal/common/auth"
	"github.com/flotillaproject/flotilla/internal/common/health"
	"github.com/flotillaproject/flotilla/internal/common/task"
	"github.com/flotillaproject/flotilla/internal/flotilla/allocation"
	"github.com/flotillaproject/flotilla/internal/flotilla/cache"
	"github.com/flotillaproject/flotilla/internal/flotilla/configuration"
	"github.com/flotillaproject/flotilla/internal/flotilla/httpapi"
	"github.com/flotillaproject/flotilla/internal/flotilla/metrics"
	"github.com/flotillaproject/flotilla/internal/flotilla/repository"
	"github.com/flotillaproject/flotilla/internal/flotilla/server"
)

func Serve(ctx context.Context, config *configuration.FlotillaConfig, healthChecks *health.MultiChecker) error {
	log.Info("Flotilla broker starting")
	defer log.Info("Flotilla broker shutting down")

	if err := validateFlotillaConfig(config); err != nil {
		return err
	}

	// Marked complete once every component below is wired and listening.
	startupCheck := health.NewStartupCompleteChecker()
	healthChecks.Add(startupCheck)

	// Everything runs under one errgroup so a failing component takes the
	// process down rather than leaving it half alive.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	db := redis.NewUniversalClient(config.Redis.AsUniversalOptions())
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("could not close Redis client cleanly")
		}
	}()
	healthChecks.Add(repository.NewRedisHealth(db))

	jobRepository := repository.NewRedisJobRepository(db, config.Retention)
	agentRepository := repository.NewRedisAgentRepository(db, config.Retention)
	statsRepository := repository.NewRedisStatsRepository(db, config.Retention)
	authorizationRepository := repository.NewRedisAuthorizationRepository(db)
	tokenRepository := repository.NewRedisTokenRepository(db, config.Retention)
	eventRepository := repository.NewRedisEventRepository(db, config.Retention)

	// Events always land on the Redis stream; a NATS mirror is added when
	// servers are configured.
	var eventStore repository.EventStore = eventRepository
	if len(config.EventsNats.Servers) > 0 {
		publisher, err := repository.NewNatsEventPublisher(config.EventsNats)
		if err != nil {
			return err
		}
		defer publisher.Close()
		healthChecks.Add(publisher)
		eventStore = repository.NewMultiEventStore(eventRepository, publisher)
		log.Infof("Mirroring job events to NATS subject %s", config.EventsNats.Subject)
	}

	permissions := auth.NewPrincipalPermissionChecker(
		config.Auth.PermissionGroupMapping,
		config.Auth.PermissionScopeMapping,
		config.Auth.PermissionClaimMapping,
	)

	// Each request walks the configured auth services in order until one of
	// them accepts or rejects the credentials.
	authServices, err := auth.ConfigureAuth(config.Auth, tokenRepository)
	if err != nil {
		return err
	}

	submitServer := server.NewSubmitServer(permissions, jobRepository, authorizationRepository, eventStore)
	agentServer := server.NewAgentServer(permissions, jobRepository, agentRepository, statsRepository, eventStore)
	queueCache := cache.NewQueueCache(jobRepository, agentRepository, statsRepository)
	queueServer := server.NewQueueServer(jobRepository, agentRepository, eventRepository, queueCache)
	adminServer := server.NewAdminServer(permissions, authorizationRepository, tokenRepository)

	taskManager := task.NewBackgroundTaskManager(metrics.MetricPrefix)
	defer taskManager.StopAll(2 * time.Second)
	taskManager.Register(queueCache.Refresh, config.Metrics.RefreshInterval, "refresh_queue_cache")

	if len(config.Allocation.Queues) > 0 {
		orchestrator := allocation.NewOrchestrator(submitServer, jobRepository, config.Allocation)
		runner := allocation.NewRunner(config.Allocation, agentServer, jobRepository, orchestrator)
		defer runner.Stop()
		taskManager.Register(runner.CheckForWork, config.Allocation.PollInterval, "allocation_runner")
		log.Infof("Multi-device allocation runner serving queues %v", config.Allocation.Queues)
	}

	metrics.ExposeQueueMetrics(queueCache)

	apiServer := httpapi.NewServer(submitServer, agentServer, queueServer, adminServer)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.HttpPort),
		Handler: apiServer.Router(authServices, healthChecks),
	}

	lis, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return errors.WithStack(err)
	}
	log.Infof("Flotilla HTTP API listening on %d", config.HttpPort)

	// On cancellation the server gets five seconds to drain in-flight requests.
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := httpServer.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	startupCheck.MarkComplete()
	return g.Wait()
}

func validateFlotillaConfig(config *configuration.FlotillaConfig) error {
	if config.HttpPort == 0 {
		return errors.New("httpPort must be specified")
	}
	if config.Metrics.RefreshInterval <= 0 {
		return errors.New("metrics.refreshInterval must be positive")
	}
	if len(config.Allocation.Queues) > 0 {
		if config.Allocation.AgentName == "" {
			return errors.New("allocation.agentName must be specified when allocation queues are configured")
		}
		if config.Allocation.PollInterval <= 0 {
			return errors.New("allocation.pollInterval must be positive")
		}
		if config.Allocation.DefaultTimeout <= 0 {
			return errors.New("allocation.defaultTimeout must be positive")
		}
	}
	return nil
}
