package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"

	"jan-server/services/support-api/internal/config"
	"jan-server/services/support-api/internal/domain/support"
	"jan-server/services/support-api/internal/infrastructure/crontab"
	"jan-server/services/support-api/internal/infrastructure/database"
	"jan-server/services/support-api/internal/infrastructure/logger"
	"jan-server/services/support-api/internal/infrastructure/observability"
	"jan-server/services/support-api/internal/infrastructure/realtime"
	supportrepo "jan-server/services/support-api/internal/infrastructure/repository/support"
	"jan-server/services/support-api/internal/infrastructure/storage"
	"jan-server/services/support-api/internal/infrastructure/telegram"
	"jan-server/services/support-api/internal/interfaces/httpserver"
	"jan-server/services/support-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/support-api/internal/webhook"
)

// @title Support API
// @version 1.0
// @description Customer support conversations bridged between the embeddable web widget and Telegram forum topics
// @BasePath /
type Application struct {
	httpServer *httpserver.HttpServer
	crontab    *crontab.Crontab
	hub        *realtime.Hub
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, cron *crontab.Crontab, hub *realtime.Hub, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		crontab:    cron,
		hub:        hub,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error {
		err := a.httpServer.Run(ctx)
		if err != nil {
			cancel()
		}
		return err
	})
	eg.Go(func() error {
		err := a.crontab.Run(ctx)
		if err != nil {
			cancel()
		}
		return err
	})
	eg.Go(func() error {
		// Closing the hub ends live event streams so Shutdown can drain them.
		<-ctx.Done()
		a.hub.Close()
		return nil
	})

	return eg.Wait()
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.AutoMigrate(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	storageClient, err := newStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize storage")
	}

	conversationRepo := supportrepo.NewConversationRepository(db)
	messageRepo := supportrepo.NewMessageRepository(db)

	hub := realtime.NewHub(log)
	botClient := telegram.NewClient(cfg, log)
	imageService := support.NewImageService(cfg, storageClient, log)
	supportService := support.NewService(cfg, conversationRepo, messageRepo, botClient, hub, log)
	processor := webhook.NewProcessor(cfg, supportService, botClient, imageService, log)

	provider := handlers.NewProvider(cfg, supportService, imageService, storageClient, processor, hub, log)
	httpServer := httpserver.New(cfg, log, db, storageClient, provider)
	sweeper := crontab.New(cfg, supportService, log)

	app := NewApplication(httpServer, sweeper, hub, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

// newStorage selects the attachment backend from configuration.
func newStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (support.Storage, error) {
	if cfg.IsLocalStorage() {
		return storage.NewLocalStorage(cfg, log)
	}
	return storage.NewS3Storage(ctx, cfg, log)
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
