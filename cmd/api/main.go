package main

import (
	"printshop/internal/config"
	"printshop/internal/domain/model"
	"printshop/internal/event"
	"printshop/internal/handler"
	"printshop/internal/infra/db"
	infraRepo "printshop/internal/infra/repository"
	"printshop/internal/infra/storage"
	"printshop/internal/usecase"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

func main() {
	//.envは無くてもよい（本番は環境変数だけ）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	var logger *zap.Logger
	if cfg.GoEnv == "prod" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.Product{},
		&model.PickupPoint{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
		&model.CustomImage{},
		&model.InventoryAdjustment{},
		&model.AuditLog{},
	); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}

	//Repository（GORM実装）生成
	txm := infraRepo.NewTxManagerGorm(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	inventoryRepo := infraRepo.NewInventoryGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	pickupRepo := infraRepo.NewPickupPointGormRepository(gormDB)

	//画像ストレージ
	imageStorage := storage.NewSupabaseImageStorage(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.StorageBucket)

	//通知イベント（ブローカー未設定ならno-op）
	var events event.Publisher = event.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer kp.Close()
		events = kp
	}

	clock := usecase.RealClock{}

	//Usecase生成
	orderUC := usecase.NewOrderUsecase(txm, events, clock, logger)
	adminOrderUC := usecase.NewAdminOrderUsecase(txm, events, clock, logger)
	paymentUC := usecase.NewPaymentUsecase(txm, events, clock, logger)
	imageUC := usecase.NewCustomImageUsecase(txm, imageStorage, events, clock, logger, cfg.CleanupRetentionDays)
	productUC := usecase.NewProductUsecase(productRepo, inventoryRepo, auditRepo, clock)
	pickupUC := usecase.NewPickupPointUsecase(pickupRepo, clock)

	//Handler生成
	e := echo.New()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	handler.NewProductHandler(productUC).RegisterRoutes(e)
	handler.NewAdminProductHandler(productUC).RegisterRoutes(e, cfg)
	handler.NewOrderHandler(orderUC).RegisterRoutes(e, cfg)
	handler.NewAdminOrderHandler(adminOrderUC).RegisterRoutes(e, cfg)
	handler.NewPaymentHandler(paymentUC).RegisterRoutes(e, cfg)
	handler.NewCustomImageHandler(imageUC).RegisterRoutes(e, cfg)
	handler.NewPickupPointHandler(pickupUC).RegisterRoutes(e, cfg)

	//Server起動
	addr := cfg.Port
	if addr[0] != ':' {
		addr = ":" + addr
	}

	logger.Info("server starting", zap.String("addr", addr))
	if err := e.Start(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
