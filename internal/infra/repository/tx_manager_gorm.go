package repository

import (
	"context"

	repo "printshop/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	orders       repo.OrderRepository
	orderItems   repo.OrderItemRepository
	products     repo.ProductRepository
	inventory    repo.InventoryRepository
	payments     repo.PaymentRepository
	customImages repo.CustomImageRepository
	pickupPoints repo.PickupPointRepository
	auditLogs    repo.AuditLogRepository
}

func (r *txReposGorm) Orders() repo.OrderRepository             { return r.orders }
func (r *txReposGorm) OrderItems() repo.OrderItemRepository     { return r.orderItems }
func (r *txReposGorm) Products() repo.ProductRepository         { return r.products }
func (r *txReposGorm) Inventory() repo.InventoryRepository      { return r.inventory }
func (r *txReposGorm) Payments() repo.PaymentRepository         { return r.payments }
func (r *txReposGorm) CustomImages() repo.CustomImageRepository { return r.customImages }
func (r *txReposGorm) PickupPoints() repo.PickupPointRepository { return r.pickupPoints }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository       { return r.auditLogs }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			orders:       NewOrderGormRepository(tx),
			orderItems:   NewOrderItemGormRepository(tx),
			products:     NewProductGormRepository(tx),
			inventory:    NewInventoryGormRepository(tx),
			payments:     NewPaymentGormRepository(tx),
			customImages: NewCustomImageGormRepository(tx),
			pickupPoints: NewPickupPointGormRepository(tx),
			auditLogs:    NewAuditLogGormRepository(tx),
		}
		return fn(r)
	})
}
