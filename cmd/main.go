package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"chamber-monitor/internal/api"
	"chamber-monitor/internal/config"
	"chamber-monitor/internal/dispatch"
	"chamber-monitor/internal/kafka"
	"chamber-monitor/internal/logging"
	"chamber-monitor/internal/models"
	"chamber-monitor/internal/providers"
	"chamber-monitor/internal/store"
	"chamber-monitor/internal/tb"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Notification channels: each is optional and enabled by its config.
	provFuncs := map[string]dispatch.ProviderFunc{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		provFuncs["telegram"] = func(ctx context.Context, task models.Task) error {
			return providers.SendTelegram(ctx, task, logger, cfg)
		}
	}
	if cfg.Email.SMTPServer != "" {
		provFuncs["email"] = func(_ context.Context, task models.Task) error {
			return providers.SendEmail(task, cfg)
		}
	}
	var publisher *kafka.Publisher
	if cfg.Kafka.Broker != "" {
		publisher = kafka.NewPublisher(kafka.Config{Broker: cfg.Kafka.Broker, Topic: cfg.Kafka.Topic}, logger)
		provFuncs["kafka"] = publisher.Publish
		logger.Infof("Kafka alert publisher enabled: topic=%s", cfg.Kafka.Topic)
	}

	// Start the dispatch worker pool
	svc := dispatch.New(logger, cfg, provFuncs)
	var wg sync.WaitGroup
	svc.Start(&wg)

	// Gateway client and shared poll store. A missing TB configuration is
	// not fatal: the API stays up and reports the missing settings.
	wsm := api.NewWSManager(logger)
	var st *store.Store
	gw, gwErr := tb.New(cfg.ThingsBoard)
	if gwErr != nil {
		logger.Errorf("Telemetry gateway not configured: %v", gwErr)
	} else {
		st = store.New(gw, logger, cfg)
		st.SetNotifier(svc)
		go st.Run(ctx)
		go wsm.Run(ctx, st)
	}

	// Start API server
	handler := api.NewHandler(st, gwErr, logger, cfg, wsm)
	router := api.NewRouter(handler, logger, cfg)
	go func() {
		logger.Infof("API server started on %s", cfg.API.Port)
		if err := router.Run(cfg.API.Port); err != nil {
			logger.Errorf("API server failed: %v", err)
		}
	}()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Infof("Shutting down...")
	cancel()
	svc.Stop()
	if publisher != nil {
		publisher.Close()
	}
	wg.Wait()
	logger.Infof("Service stopped")
}
