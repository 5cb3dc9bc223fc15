package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trackevolve/internal/auth"
	"github.com/ukydev/trackevolve/internal/config"
	"github.com/ukydev/trackevolve/internal/db"
	"github.com/ukydev/trackevolve/internal/episode"
	"github.com/ukydev/trackevolve/internal/handlers"
	"github.com/ukydev/trackevolve/internal/middleware"
	"github.com/ukydev/trackevolve/internal/sim"
	"github.com/ukydev/trackevolve/internal/telemetry"
	"github.com/ukydev/trackevolve/internal/track"
)

const (
	rateLimit       = 120
	rateWindow      = time.Minute
	frameBatch      = 500
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	if err := cfg.SetupLogging(); err != nil {
		log.WithError(err).Fatal("Invalid logging configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("Server failed")
	}
	log.Info("Graceful shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	simulator, err := loadSimulator(cfg)
	if err != nil {
		return err
	}

	client, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(dctx); err != nil {
			log.WithError(err).Warn("MongoDB disconnect failed")
		}
	}()
	database := client.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		return err
	}

	episodes := &db.MongoEpisodeCollection{Collection: database.Collection(db.EpisodesCollectionName)}
	frames := &db.MongoTelemetryCollection{Collection: database.Collection(db.TelemetryCollectionName)}
	users := &db.MongoUserCollection{Collection: database.Collection(db.UsersCollectionName)}

	var pub telemetry.Publisher
	if cfg.MQTTBroker != "" {
		p, err := telemetry.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			return err
		}
		defer p.Close()
		pub = p
	}

	authService, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handlers.Routes(mux,
		handlers.NewAuthHandler(authService, users),
		handlers.NewEpisodeHandler(simulator, episodes, frames, observerFactory(cfg, pub, frames)),
		middleware.NewAuthMiddleware(authService),
	)
	limiter := middleware.NewRateLimiter(rateLimit, rateWindow, middleware.WithTrustedProxy(cfg.TrustProxy))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.Logger(limiter.Limit(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{
			"port":       cfg.Port,
			"track":      simulator.TrackName,
			"max_frames": simulator.Options.MaxFrames,
			"drift":      simulator.Drift,
			"mqtt":       pub != nil,
		}).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(sctx)
}

// loadSimulator reads the configured track and tuning.
func loadSimulator(cfg *config.Config) (handlers.Simulator, error) {
	s, err := cfg.Simulation()
	if err != nil {
		return handlers.Simulator{}, err
	}
	mask, _, err := track.Load(cfg.TrackImage, cfg.Border)
	if err != nil {
		return handlers.Simulator{}, err
	}
	tr, err := sim.NewTrack(mask, s.Law, s.Options...)
	if err != nil {
		return handlers.Simulator{}, err
	}
	return handlers.Simulator{
		Track:     tr,
		TrackName: filepath.Base(cfg.TrackImage),
		Spec:      s.Spec,
		Start:     s.Start,
		Options:   cfg.EpisodeOptions(),
		Drift:     s.Drift != nil,
	}, nil
}

// observerFactory returns nil when neither MQTT nor frame storage is on.
func observerFactory(cfg *config.Config, pub telemetry.Publisher, frames db.TelemetryCollection) handlers.ObserverFactory {
	if pub == nil && !cfg.StoreFrames {
		return nil
	}
	return func() []episode.Observer {
		opts := []telemetry.Option{telemetry.WithDenominator(cfg.InputDenominator)}
		if cfg.StoreFrames {
			opts = append(opts, telemetry.WithStore(frames, frameBatch))
		}
		return []episode.Observer{telemetry.NewObserver(pub, cfg.MQTTTopicPrefix, cfg.MQTTFrameEvery, opts...)}
	}
}
