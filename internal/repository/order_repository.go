package repository

import (
	"context"
	"time"

	"printshop/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	// メタ情報（顧客情報・受取場所など）の更新
	Update(ctx context.Context, order model.Order) error

	// 現在statusがfromのときだけtoへ更新する。
	// falseはすでに他の遷移が入ったということ（二重遷移防止）。
	UpdateStatusIf(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) (bool, error)

	SetApprovedBy(ctx context.Context, orderID int64, staffID int64) error

	// 合計金額へ差分を加算（明細の追加・削除）
	AddToTotal(ctx context.Context, orderID int64, delta int64) error

	// 注文番号の衝突チェック（コミット前の再確認）
	ExistsByOrderNumber(ctx context.Context, orderNumber string) (bool, error)

	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
