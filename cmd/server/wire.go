//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"jan-server/services/support-api/internal/config"
	"jan-server/services/support-api/internal/domain/support"
	"jan-server/services/support-api/internal/infrastructure/crontab"
	"jan-server/services/support-api/internal/infrastructure/database"
	"jan-server/services/support-api/internal/infrastructure/logger"
	"jan-server/services/support-api/internal/infrastructure/realtime"
	supportrepo "jan-server/services/support-api/internal/infrastructure/repository/support"
	"jan-server/services/support-api/internal/infrastructure/telegram"
	"jan-server/services/support-api/internal/interfaces/httpserver"
	"jan-server/services/support-api/internal/interfaces/httpserver/handlers"
	"jan-server/services/support-api/internal/webhook"
)

var supportSet = wire.NewSet(
	supportrepo.NewConversationRepository,
	wire.Bind(new(support.ConversationRepository), new(*supportrepo.ConversationRepository)),
	supportrepo.NewMessageRepository,
	wire.Bind(new(support.MessageRepository), new(*supportrepo.MessageRepository)),
	realtime.NewHub,
	wire.Bind(new(support.EventPublisher), new(*realtime.Hub)),
	telegram.NewClient,
	wire.Bind(new(support.Relay), new(*telegram.Client)),
	newStorage,
	support.NewImageService,
	support.NewService,
)

var webhookSet = wire.NewSet(
	webhook.NewProcessor,
	wire.Bind(new(webhook.ConversationStore), new(*support.Service)),
	wire.Bind(new(webhook.BotGateway), new(*telegram.Client)),
	wire.Bind(new(webhook.ImageStore), new(*support.ImageService)),
)

// BuildApplication assembles the support API with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		newDatabaseConfig,
		newGormDB,
		supportSet,
		webhookSet,
		handlers.NewProvider,
		httpserver.New,
		crontab.New,
		NewApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}
