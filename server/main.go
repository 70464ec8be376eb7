package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/haasonsaas/keywarden/pkg/config"
	"github.com/haasonsaas/keywarden/pkg/fingerprint"
	"github.com/haasonsaas/keywarden/pkg/keygen"
	"github.com/haasonsaas/keywarden/pkg/license"
	"github.com/haasonsaas/keywarden/pkg/telemetry"
)

var (
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	configPath = flag.String("config", "keywarden.yaml", "Config file path")
	dbPath     = flag.String("db", "", "Database path (overrides config)")
	Version    = "dev"
)

// Server wires the validation engine to the HTTP surface.
type Server struct {
	db     *gorm.DB
	engine *license.Engine
	keygen keygen.Generator
	cfg    *config.ServerConfig
	logger zerolog.Logger
}

func main() {
	flag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *dbPath != "" {
		cfg.Server.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("invalid config")
	}

	logger := newLogger(cfg.Logging)
	logger.Info().Str("version", Version).Msg("keywarden server starting")

	provider, err := telemetry.Setup(context.Background(), telemetry.Options{
		ServiceName:    "keywarden-server",
		ServiceVersion: Version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		LogSpans:       cfg.Tracing.LogSpans,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}()

	db, err := gorm.Open(sqlite.Open(cfg.Server.DBPath), &gorm.Config{})
	if err != nil {
		logger.Fatal().Err(err).Str("db", cfg.Server.DBPath).Msg("failed to open database")
	}
	if err := db.AutoMigrate(&LicenseRow{}, &BanRow{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate schema")
	}

	store := NewGormStore(db)
	hasher := fingerprint.NewHasher([]byte(cfg.Licenses.FingerprintSalt))

	srv := &Server{
		db:     db,
		engine: license.NewEngine(store, hasher, logger),
		keygen: keygen.New(cfg.Licenses.KeyLabel),
		cfg:    cfg,
		logger: logger,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(withRequestContext(logger))

	srv.registerPublicRoutes(r)
	srv.registerAdminRoutes(r)

	logger.Info().Str("listen", cfg.Server.Listen).Msg("listening")
	if err := r.Run(cfg.Server.Listen); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.JSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
