package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/triadlabs/triad/config"
	"github.com/triadlabs/triad/conversation"
	"github.com/triadlabs/triad/handlers"
	"github.com/triadlabs/triad/internal/utils"
	"github.com/triadlabs/triad/llm"
	"github.com/triadlabs/triad/orchestrator"
)

const probeTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: failed to build: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	backend, mode := selectBackend(cfg, sugar)
	sugar.Infow("model backend selected",
		"mode", mode,
		"partner_model", cfg.RepresentorModel,
		"therapist_model", cfg.TherapistModel,
	)

	store := conversation.NewStore()
	hub := handlers.NewStreamHub(sugar)
	store.SetObserver(hub)

	orch := orchestrator.New(store, backend, orchestrator.Config{
		RepresentorModel: cfg.RepresentorModel,
		TherapistModel:   cfg.TherapistModel,
		BackendTimeout:   cfg.BackendTimeout,
	}, sugar)

	router := setupRouter(orch, backend, hub, cfg, mode, sugar)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		sugar.Infow("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server crashed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("graceful shutdown failed", "error", err)
	}

	sugar.Info("server stopped cleanly")
}

// selectBackend decides live vs. simulated. Only auto mode dials out: it
// validates the credential with a minimal completion and falls back to
// simulated output when that probe fails. Live mode trusts the
// configuration and never blocks startup on the network.
func selectBackend(cfg *config.Config, logger *zap.SugaredLogger) (llm.Backend, string) {
	if cfg.Mode == config.ModeSimulated {
		return llm.NewSimulated(), config.ModeSimulated
	}

	client := llm.NewClient(llm.ClientConfig{
		BaseURL:            cfg.APIBaseURL,
		APIKey:             cfg.APIKey,
		TranscriptionModel: cfg.TranscriptionModel,
		SpeechModel:        cfg.SpeechModel,
		SpeechVoice:        cfg.SpeechVoice,
		SpeechFormat:       cfg.SpeechFormat,
	}, logger)

	if cfg.Mode == config.ModeAuto {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()

		if err := client.Probe(ctx, cfg.RepresentorModel); err != nil {
			logger.Warnw("credential probe failed, falling back to simulated responses", "error", err)
			return llm.NewSimulated(), config.ModeSimulated
		}
	}

	return client, config.ModeLive
}

func setupRouter(orch *orchestrator.Orchestrator, backend llm.Backend, hub *handlers.StreamHub, cfg *config.Config, mode string, logger *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), handlers.RequestID(), handlers.CORS())

	handlers.New(orch, backend, hub, handlers.Options{
		Mode:             mode,
		RepresentorModel: cfg.RepresentorModel,
		TherapistModel:   cfg.TherapistModel,
		VoiceEnabled:     cfg.VoiceEnabled,
	}, logger).RegisterRoutes(router)

	return router
}
