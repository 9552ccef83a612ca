package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blogdraft-server/internal/config"
	"blogdraft-server/internal/events"
	"blogdraft-server/internal/handler"
	"blogdraft-server/internal/llm"
	"blogdraft-server/internal/logger"
	"blogdraft-server/internal/metrics"
	"blogdraft-server/internal/prompts"
	"blogdraft-server/internal/repository"
	"blogdraft-server/internal/service"
	"blogdraft-server/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(cfg.Server.Env, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer appLog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	store, err := openStore(ctx, cfg.Store, appLog, m)
	if err != nil {
		appLog.Fatal("failed to open store", "driver", cfg.Store.Driver, "error", err)
	}
	defer store.Close()

	set, err := loadPrompts(cfg.LLM.PromptsFile)
	if err != nil {
		appLog.Fatal("failed to load prompts", "file", cfg.LLM.PromptsFile, "error", err)
	}

	editor, err := llm.New(cfg.LLM, set, appLog)
	if err != nil {
		appLog.Fatal("failed to configure editor", "provider", cfg.LLM.Provider, "error", err)
	}

	wsManager := websocket.NewManager(cfg.WebSocket, appLog, m)
	go wsManager.Run(ctx)

	local := events.NewLocal(m, wsManager)
	var publisher events.Publisher = local
	if cfg.Events.RedisAddr != "" {
		bus, err := events.NewRedisBus(cfg.Events, local, appLog)
		if err != nil {
			appLog.Fatal("failed to connect to redis", "addr", cfg.Events.RedisAddr, "error", err)
		}
		defer bus.Close()
		if err := bus.StartForwarder(ctx); err != nil {
			appLog.Fatal("failed to subscribe to events", "channel", cfg.Events.RedisChannel, "error", err)
		}
		publisher = bus
	}

	authService, err := service.NewAuthService(cfg.Auth)
	if err != nil {
		appLog.Fatal("invalid auth configuration", "error", err)
	}
	if !authService.Enabled() {
		appLog.Warn("authentication is disabled")
	}

	documentService := service.NewDocumentService(store, publisher, appLog)
	editService := service.NewEditService(store, editor, publisher, cfg.Edit, appLog, m)
	versionService := service.NewVersionService(store, publisher, appLog, m)

	r := handler.NewRouter(handler.Handlers{
		Auth:      handler.NewAuthHandler(authService, appLog),
		Documents: handler.NewDocumentHandler(documentService, appLog),
		Edits:     handler.NewEditHandler(editService, appLog),
		Versions:  handler.NewVersionHandler(versionService, appLog),
		WebSocket: handler.NewWebSocketHandler(wsManager, authService, cfg.WebSocket, appLog),
	}, authService, cfg.CORS, appLog, m)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLog.Info("starting blogdraft server",
			"addr", addr,
			"env", cfg.Server.Env,
			"store", cfg.Store.Driver,
			"provider", cfg.LLM.Provider,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	appLog.Info("server stopped gracefully")
}

func openStore(ctx context.Context, cfg config.StoreConfig, log *logger.Logger, m *metrics.Metrics) (repository.ContentStore, error) {
	if cfg.Driver == config.DriverCouchDB {
		client, err := kivik.New("couch", cfg.CouchURL)
		if err != nil {
			return nil, fmt.Errorf("connect to couchdb: %w", err)
		}
		return repository.NewCouchStore(ctx, client, cfg.CouchDBName, log, m)
	}

	db, err := repository.OpenGorm(cfg, log)
	if err != nil {
		return nil, err
	}
	return repository.NewGormStore(db, log, m)
}

func loadPrompts(path string) (*prompts.Set, error) {
	if path == "" {
		return prompts.Default()
	}
	return prompts.Load(path)
}
