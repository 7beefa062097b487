// Command deskmock serves a simulated trading desk: the push channel on /ws
// and the REST resources deskwatch polls. It exists for local development and
// for exercising reconnects (POST /debug/drop closes every push client).
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"deskwatch/internal/common"
	"deskwatch/internal/deskserver"
)

func main() {
	_ = godotenv.Load()

	var (
		addr     = flag.String("addr", envOr(common.EnvMockAddr, common.DefaultMockAddr), "Listen address")
		interval = flag.Duration("update-interval", 2*time.Second, "desk_update broadcast period, 0 to disable")
		seed     = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed for the simulated desk")
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	srv := deskserver.New(deskserver.Options{
		Addr:           *addr,
		UpdateInterval: *interval,
		Desk:           deskserver.NewDesk(*seed, nil),
	})
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("desk server start failed")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("shutdown signal received")

	if err := srv.Stop(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
