package main

import (
	"context"
	"time"

	"printshop/internal/config"
	"printshop/internal/event"
	"printshop/internal/infra/db"
	infraRepo "printshop/internal/infra/repository"
	"printshop/internal/infra/storage"
	"printshop/internal/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// 放置されたpending画像の掃除バッチ。cronから1日1回叩く想定。
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	gormDB, err := db.Connect()
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}

	txm := infraRepo.NewTxManagerGorm(gormDB)
	imageStorage := storage.NewSupabaseImageStorage(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.StorageBucket)

	uc := usecase.NewCustomImageUsecase(txm, imageStorage, event.NoopPublisher{}, usecase.RealClock{}, logger, cfg.CleanupRetentionDays)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	removed, err := uc.CleanupAbandoned(ctx)
	if err != nil {
		logger.Fatal("cleanup failed", zap.Error(err))
	}
	logger.Info("cleanup done", zap.Int("removed", removed))
}
