package main

import (
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlore/chatserver/pkg/server"
	"github.com/openlore/chatserver/pkg/storage"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "~/.chatserver/config.toml", "Path to config file")
	tcpAddr := flag.String("tcp", "", "TCP listen address (overrides config)")
	dbPath := flag.String("db", "", "Path to SQLite database (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	pprofAddr := flag.String("pprof", "", "Enable pprof on this address (e.g. localhost:6060)")
	version := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *version {
		fmt.Printf("chatserverd %s\n", Version)
		os.Exit(0)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	config, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if *tcpAddr != "" {
		config.Server.TCPAddr = *tcpAddr
	}
	if *dbPath != "" {
		config.Storage.DatabasePath = *dbPath
	}

	level, err := zerolog.ParseLevel(config.Server.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if *debug {
		level = zerolog.DebugLevel
	}
	log = log.Level(level)

	finalDBPath, err := config.GetDatabasePath()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve database path")
	}
	if err := os.MkdirAll(filepath.Dir(finalDBPath), 0755); err != nil {
		log.Fatal().Err(err).Msg("failed to create database directory")
	}

	store, err := storage.Open(finalDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()

	log.Info().Str("config", *configPath).Str("database", finalDBPath).Msg("starting chat server")

	if *pprofAddr != "" {
		go func() {
			log.Info().Str("addr", *pprofAddr).Msg("pprof listener started")
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				log.Error().Err(err).Msg("pprof listener failed")
			}
		}()
	}

	srv := server.NewServer(config, store, log)
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info().Str("signal", sig.String()).Msg("shutting down")

	srv.Stop()
}
