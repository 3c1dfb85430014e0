package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calegray/cardflow-backend/internal/clients/chatsurface"
	"github.com/calegray/cardflow-backend/internal/config"
	"github.com/calegray/cardflow-backend/internal/data/db"
	"github.com/calegray/cardflow-backend/internal/data/repos"
	"github.com/calegray/cardflow-backend/internal/mq"
	"github.com/calegray/cardflow-backend/internal/observability"
	"github.com/calegray/cardflow-backend/internal/pkg/envutil"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
	"github.com/calegray/cardflow-backend/internal/recall"
)

// Standalone recall worker. Runs only the queue consumer, for deployments
// that scale recall processing separately from the API.
func main() {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "cardflow-recallworker",
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("SERVICE_VERSION", "dev"),
	})

	dbService, err := db.New(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err := db.AutoMigrateAll(dbService.DB()); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}
	repoSet := repos.NewSet(dbService.DB(), log)

	bots, err := config.LoadBots(envutil.String("BOTS_CONFIG_PATH", "config/bots.yaml"))
	if err != nil {
		log.Error("Loading bot credentials failed", "error", err)
		os.Exit(1)
	}
	surface, err := chatsurface.NewClient(log, bots)
	if err != nil {
		log.Error("Chat surface client init failed", "error", err)
		os.Exit(1)
	}

	mqClient, err := mq.NewClient(log, mq.ConfigFromEnv())
	if err != nil {
		log.Error("Queue init failed", "error", err)
		os.Exit(1)
	}
	dispatcher := recall.NewDispatcher(log, mqClient)
	consumer := recall.NewConsumer(log, mqClient, dispatcher, repoSet.ResponseRecord, surface)
	if err := consumer.Start(); err != nil {
		log.Error("Recall consumer start failed", "error", err)
		os.Exit(1)
	}
	log.Info("Recall worker running")

	<-ctx.Done()
	log.Info("Shutting down...")
	if err := mqClient.Close(); err != nil {
		log.Warn("Queue close error", "error", err)
	}
	if shutdownOTel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			log.Warn("Tracing shutdown error", "error", err)
		}
	}
}
