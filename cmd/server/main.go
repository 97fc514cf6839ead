package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/mercadia/salesgoals/internal/api"
	"github.com/mercadia/salesgoals/internal/audit"
	"github.com/mercadia/salesgoals/internal/config"
	"github.com/mercadia/salesgoals/internal/database"
	"github.com/mercadia/salesgoals/internal/repository"
	"github.com/mercadia/salesgoals/internal/service"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используются переменные окружения")
	}

	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Ошибка выполнения миграций: %v", err)
	}

	repos := repository.NewRepositories(db)
	sink := audit.NewZapSink(logger)
	services := service.NewServices(repos, cfg, logger, sink)

	// прогреваем проекцию леджера и держим ее живой через change stream
	ctx := context.Background()
	if err := services.Ledger.Load(ctx); err != nil {
		log.Fatalf("Ошибка загрузки леджера целей: %v", err)
	}
	go services.Ledger.Run(ctx)

	services.Lifecycle.Start()
	defer services.Lifecycle.Stop()

	server := api.NewServer(cfg, services, logger)

	logger.Info("starting salesgoals server", zap.String("port", cfg.Port))
	if err := server.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Ошибка запуска сервера: %v", err)
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
