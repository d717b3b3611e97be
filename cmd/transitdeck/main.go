package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/transitdeck/transitdeck/internal/activity"
	"github.com/transitdeck/transitdeck/internal/bus"
	"github.com/transitdeck/transitdeck/internal/cache"
	"github.com/transitdeck/transitdeck/internal/compose"
	"github.com/transitdeck/transitdeck/internal/config"
	"github.com/transitdeck/transitdeck/internal/engine"
	"github.com/transitdeck/transitdeck/internal/gtfs"
	"github.com/transitdeck/transitdeck/internal/metrics"
	"github.com/transitdeck/transitdeck/internal/provider"
	"github.com/transitdeck/transitdeck/internal/store"
	"github.com/transitdeck/transitdeck/internal/subs"
)

const (
	appName = "transitdeck"
	version = "v0.3.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Real-time transit-arrival aggregator",
		Version: version,
		Long: `transitdeck fans out device subscriptions to upstream transit feeds,
caches normalized arrival payloads, and pushes per-device render commands
to the downstream message bus.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the aggregator engine",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Path to YAML config file")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	kv, err := store.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer kv.Close()

	arrivals := cache.NewArrivals(kv, log.Logger)
	devices := activity.NewStore(kv, cfg.HeartbeatTimeout(), log.Logger)

	var source subs.Source = subs.Static(nil)
	if cfg.Postgres.DSN != "" {
		pg, err := subs.NewPostgresSource(cfg.Postgres.DSN, log.Logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		source = pg
	} else {
		log.Warn().Msg("no postgres dsn configured; starting with an empty subscription set")
	}

	var publisher bus.Publisher = bus.Nop{}
	if cfg.Bus.URL != "" {
		ws := bus.NewWebsocket(cfg.Bus.URL, log.Logger)
		defer ws.Close()
		publisher = ws
	} else {
		log.Warn().Msg("no bus url configured; device commands will be dropped")
	}

	var labels compose.LabelResolver = compose.NopResolver()
	if cfg.Labels.Path != "" {
		table, err := gtfs.Load(cfg.Labels.Path)
		if err != nil {
			return err
		}
		labels = table
	}

	eng := engine.New(engine.Options{
		Registry:        provider.Default(),
		Cache:           arrivals,
		Activity:        devices,
		Subs:            source,
		Bus:             publisher,
		Metrics:         metrics.NewPrometheus(prometheus.DefaultRegisterer),
		Labels:          labels,
		Log:             log.Logger,
		RefreshInterval: cfg.RefreshInterval(),
		PushInterval:    cfg.PushInterval(),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return err
	}
	log.Info().
		Str("redis", cfg.Redis.Addr).
		Dur("refresh_interval", cfg.RefreshInterval()).
		Dur("push_interval", cfg.PushInterval()).
		Msg("engine started")

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	router.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case <-eng.Ready():
			fmt.Fprintln(w, "ready")
		default:
			http.Error(w, "starting", http.StatusServiceUnavailable)
		}
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("ops listener failed")
		}
	}()
	log.Info().Str("addr", cfg.HTTP.Addr).Msg("ops listener started")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	eng.Stop()
	server.Close()
	return nil
}
