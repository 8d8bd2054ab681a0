package repository

import (
	"context"
	"errors"

	"printshop/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// ユニーク制約違反など、同時実行の衝突
var ErrConflict = errors.New("conflict")

// 一覧検索
type ProductListQuery struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *int64
	MaxPrice *int64
	Sort     string
}

// 商品の永続化（保存・取得）だけを約束。
// 在庫数quantityはここでは触らない（InventoryRepository経由のみ）。
type ProductRepository interface {
	ListPublic(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	SoftDelete(ctx context.Context, id int64) error
}
