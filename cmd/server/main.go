package main

import (
	"context"
	"time"

	"github.com/geosync/geosync/pkg/config"
	"github.com/geosync/geosync/pkg/coordinator"
	"github.com/geosync/geosync/pkg/logger"
	"github.com/geosync/geosync/pkg/os"
)

var Version = "?"

func main() {
	conf, err := config.NewConfig("")
	if err != nil {
		logger.Default().Fatal().Err(err).Msg("config load failed")
	}
	conf.ParseFlags()

	log := logger.NewConsole(conf.Debug, "gs", false)
	log.Info().Msgf("version %s", Version)
	if log.GetLevel() < logger.InfoLevel {
		log.Debug().Msgf("config: %+v", conf)
	}

	c := coordinator.New(conf, log)
	c.Run()

	<-os.ExpectTermination()
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
}
