package main

import (
	"context"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/flotillaproject/flotilla/internal/common"
	"github.com/flotillaproject/flotilla/internal/common/health"
	"github.com/flotillaproject/flotilla/internal/flotilla"
	"github.com/flotillaproject/flotilla/internal/flotilla/configuration"
)

const customConfigFlag = "config"

func init() {
	pflag.String(customConfigFlag, "", "Path to a configuration file merged over the defaults")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.FlotillaConfig
	common.LoadConfig(&config, "./config/flotilla", viper.GetString(customConfigFlag))

	shutdownMetricServer := common.ServeMetrics(config.Metrics.Port)
	defer shutdownMetricServer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flotilla.Serve(ctx, &config, health.NewMultiChecker()); err != nil {
		log.Fatalf("Flotilla broker failed: %v", err)
	}
}
