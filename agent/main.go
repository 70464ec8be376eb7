package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/haasonsaas/keywarden/pkg/config"
)

var (
	configPath = flag.String("config", "agent.yaml", "Config file path")
	licenseKey = flag.String("key", "", "License key (overrides config)")
	Version    = "dev"
)

func main() {
	flag.Parse()

	cfg, err := config.LoadAgent(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *licenseKey != "" {
		cfg.License.Key = *licenseKey
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	setupLogging(cfg.Logging)

	key, err := resolveKey(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("no license key available")
	}

	hwid := collectHWID()
	client := NewClient(cfg.Server.URL, time.Duration(cfg.Server.RequestTimeout)*time.Second)
	retry := newRetrier(cfg.Server.RetryInitialMs, cfg.Server.RetryMaxMs, cfg.Server.RetryMaxRetries)

	log.Info().Str("version", Version).Str("server", cfg.Server.URL).Msg("keywarden agent starting")

	var result *ValidateResult
	err = retry.do(func() error {
		r, err := client.Validate(key, hwid)
		if err != nil {
			return err
		}
		result = r
		return nil
	}, isRetryable)
	if err != nil {
		var denial denialError
		if errors.As(err, &denial) {
			log.Error().Str("reason", denial.reason).Msg("license denied")
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("could not reach license server")
	}

	log.Info().
		Str("duration", result.Duration).
		Str("expires_at", result.ExpiresAt).
		Str("mode", result.Mode).
		Msg("license validated")

	// Heartbeat keeps the shared-terminal session warm and discovers expiry
	// or revocation while running.
	ticker := time.NewTicker(time.Duration(cfg.Server.HeartbeatS) * time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if _, err := client.Validate(key, hwid); err != nil {
				var denial denialError
				if errors.As(err, &denial) {
					log.Error().Str("reason", denial.reason).Msg("license revoked while running")
					releaseSession(client, result, key, hwid)
					os.Exit(1)
				}
				log.Warn().Err(err).Msg("heartbeat failed")
			}
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			releaseSession(client, result, key, hwid)
			return
		}
	}
}

// releaseSession logs out of a shared-terminal session; in permanent mode the
// call is a server-side no-op.
func releaseSession(client *Client, result *ValidateResult, key, hwid string) {
	if result == nil || result.Mode != "shared" {
		return
	}
	if err := client.Logout(key, hwid); err != nil {
		log.Warn().Err(err).Msg("failed to release session")
	}
}

func resolveKey(cfg *config.AgentConfig) (string, error) {
	if cfg.License.Key != "" {
		return cfg.License.Key, nil
	}
	data, err := os.ReadFile(cfg.License.KeyFile)
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", errors.New("license key file is empty")
	}
	return key, nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if cfg.JSON {
		logger = zerolog.New(os.Stderr)
	}
	log.Logger = logger.Level(level).With().Timestamp().Logger()
}
