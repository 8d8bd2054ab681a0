package repository

import (
	"context"

	"printshop/internal/domain/model"
)

// 在庫はすべてここを通して増減させる。quantityが負になる更新は存在しない。
type InventoryRepository interface {
	// 在庫の現在値を設定
	SetStock(ctx context.Context, productID int64, newStock int64) error

	// 商品がactiveで在庫が足りるときだけ減算（予約）。
	// 条件付きUPDATEなので同時実行でも合計が在庫を超えない。
	DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error)

	// 在庫戻し（明細削除・キャンセル）
	IncreaseStock(ctx context.Context, productID int64, qty int64) error

	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
}
