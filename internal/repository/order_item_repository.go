package repository

import (
	"context"

	"printshop/internal/domain/model"
)

type OrderItemRepository interface {
	// 採番されたIDはitemsの各要素へ書き戻される
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	FindByID(ctx context.Context, itemID int64) (model.OrderItem, error)
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)

	// trueなら実際に1件消えた。削除は一度きりなので、
	// 削除できた呼び出しだけが在庫を戻す（二重戻し防止）。
	Delete(ctx context.Context, itemID int64) (bool, error)

	DeleteByOrderID(ctx context.Context, orderID int64) error
}
