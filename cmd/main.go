package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calegray/cardflow-backend/internal/clients/chatsurface"
	"github.com/calegray/cardflow-backend/internal/clients/inference"
	redisclient "github.com/calegray/cardflow-backend/internal/clients/redis"
	"github.com/calegray/cardflow-backend/internal/config"
	"github.com/calegray/cardflow-backend/internal/data/db"
	"github.com/calegray/cardflow-backend/internal/data/repos"
	httpapi "github.com/calegray/cardflow-backend/internal/http"
	"github.com/calegray/cardflow-backend/internal/http/handlers"
	"github.com/calegray/cardflow-backend/internal/mq"
	"github.com/calegray/cardflow-backend/internal/observability"
	"github.com/calegray/cardflow-backend/internal/pkg/envutil"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
	"github.com/calegray/cardflow-backend/internal/recall"
	"github.com/calegray/cardflow-backend/internal/services"
)

func main() {
	// Logger
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "cardflow-backend",
		Environment: envutil.String("ENVIRONMENT", "development"),
		Version:     envutil.String("SERVICE_VERSION", "dev"),
	})

	// Database
	dbService, err := db.New(log)
	if err != nil {
		log.Error("Database init failed", "error", err)
		os.Exit(1)
	}
	if err := db.AutoMigrateAll(dbService.DB()); err != nil {
		log.Error("Auto migration failed", "error", err)
		os.Exit(1)
	}

	// Repos
	repoSet := repos.NewSet(dbService.DB(), log)

	// Bot credentials
	bots, err := config.LoadBots(envutil.String("BOTS_CONFIG_PATH", "config/bots.yaml"))
	if err != nil {
		log.Error("Loading bot credentials failed", "error", err)
		os.Exit(1)
	}

	// Clients
	surface, err := chatsurface.NewClient(log, bots)
	if err != nil {
		log.Error("Chat surface client init failed", "error", err)
		os.Exit(1)
	}
	inf, err := inference.NewClient(log)
	if err != nil {
		log.Error("Inference client init failed", "error", err)
		os.Exit(1)
	}
	sessionLock, err := redisclient.NewSessionLock(log)
	if err != nil {
		log.Warn("Redis session lock unavailable, falling back to in-process locking", "error", err)
		sessionLock = nil
	}

	// Queue
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

	// Services
	responseService := services.NewResponseService(dbService.DB(), log, surface, repoSet.CardContext, repoSet.ResponseRecord, sessionLock)

	// HTTP
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Log:            log,
		MessageHandler: handlers.NewMessageHandler(log, responseService, inf),
		RecallHandler:  handlers.NewRecallHandler(log, dispatcher),
		RecordHandler:  handlers.NewRecordHandler(repoSet.ResponseRecord),
	})
	srv := &http.Server{
		Addr:    ":" + envutil.String("PORT", "8080"),
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP shutdown error", "error", err)
		}
		if err := mqClient.Close(); err != nil {
			log.Warn("Queue close error", "error", err)
		}
		if sessionLock != nil {
			if err := sessionLock.Close(); err != nil {
				log.Warn("Redis close error", "error", err)
			}
		}
		if shutdownOTel != nil {
			if err := shutdownOTel(shutdownCtx); err != nil {
				log.Warn("Tracing shutdown error", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}
