package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/HsiangNianian/gamehub/internal/api"
	"github.com/HsiangNianian/gamehub/internal/catalog"
	"github.com/HsiangNianian/gamehub/internal/config"
	"github.com/HsiangNianian/gamehub/internal/detail"
	"github.com/HsiangNianian/gamehub/internal/logx"
	"github.com/HsiangNianian/gamehub/internal/metrics"
	"github.com/HsiangNianian/gamehub/internal/store"
	"github.com/HsiangNianian/gamehub/internal/ws"
)

func main() {
	envErr := godotenv.Load()

	configPath := flag.String("config", os.Getenv("GAMEHUB_CONFIG"), "path to a HuJSON or YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logx.Log.Fatal().Err(err).Msg("load config")
	}
	logx.Configure(cfg.Log.Level)
	log := logx.Component("main")
	if envErr != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(ctx, cfg.Catalog.Source)
	if err != nil {
		log.Fatal().Err(err).Str("source", cfg.Catalog.Source).Msg("load catalog")
	}
	log.Info().Int("games", cat.Len()).Str("source", cfg.Catalog.Source).Msg("catalog loaded")

	st, err := store.Open(ctx, store.Options{
		Driver:     cfg.Store.Driver,
		RedisAddr:  cfg.Store.RedisAddr,
		SQLitePath: cfg.Store.SQLitePath,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("open store")
	}
	defer st.Close()
	log.Info().Str("driver", cfg.Store.Driver).Msg("store ready")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	ctrl := detail.NewController(cat, st, detail.Options{
		FrameID:        cfg.Bridge.FrameID,
		AllowedOrigins: cfg.Bridge.AllowedOrigins,
		Debug:          cfg.Bridge.Debug,
	})
	hub := ws.NewHub(cfg.Bridge.FrameID, api.GameResolver(cat), ctrl)

	server := &http.Server{
		Addr: cfg.Server.ListenAddr,
		Handler: api.NewRouter(api.Deps{
			Catalog:        cat,
			Store:          st,
			Hub:            hub,
			Sessions:       ctrl,
			Gatherer:       reg,
			AllowedOrigins: cfg.Bridge.AllowedOrigins,
			FramePath:      cfg.Server.FramePath,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.ListenAddr).Str("frame_path", cfg.Server.FramePath).Msg("gamehub listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
