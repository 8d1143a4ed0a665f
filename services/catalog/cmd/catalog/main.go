package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/internal/util"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/pkg/token"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/services/catalog/internal/app"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/services/catalog/internal/config"
	"github.com/NayanthaNethsara/TheKade-Nalandaa-sub001/services/catalog/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokens, err := token.New(cfg.TokenSecret, token.Options{
		Issuer:   cfg.TokenIssuer,
		Audience: cfg.TokenAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
		PagesPerChunk:  cfg.PagesPerChunk,
		Caps: app.QuotaCaps{
			FreeDaily:      cfg.FreeDaily,
			FreeMonthly:    cfg.FreeMonthly,
			PremiumDaily:   cfg.PremiumDaily,
			PremiumMonthly: cfg.PremiumMonthly,
		},
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer := server.New(server.Config{
		App:    appCore,
		Tokens: tokens,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("catalog server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
