package common

import (
	"os"
	"strings"

	"github.com/weaveworks/promrus"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	commonconfig "github.com/flotillaproject/flotilla/internal/common/config"
)

const envPrefix = "FLOTILLA"

func BindCommandlineArguments() {
	fatalOnError(viper.BindPFlags(pflag.CommandLine))
}

// LoadConfig reads config.yaml from defaultPath, merges an optional
// user-specified file over it and applies FLOTILLA_-prefixed environment
// variable overrides, e.g. FLOTILLA_REDIS_ADDRS.
func LoadConfig(config interface{}, defaultPath string, overrideConfig string) {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(defaultPath)
	fatalOnError(v.ReadInConfig())

	if overrideConfig != "" {
		v.SetConfigFile(overrideConfig)
		fatalOnError(v.MergeInConfig())
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	fatalOnError(v.Unmarshal(config, commonconfig.CustomHooks...))
}

// ConfigureLogging sets up the process-wide logger and registers the
// prometheus hook counting log lines by severity.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, ForceColors: true})
	log.SetOutput(os.Stdout)
	log.AddHook(promrus.MustNewPrometheusHook())
}

// fatalOnError is for startup wiring only, where there is nothing sensible to
// do with an error except report it and stop the process.
func fatalOnError(err error) {
	if err != nil {
		log.Error(err)
		os.Exit(-1)
	}
}
