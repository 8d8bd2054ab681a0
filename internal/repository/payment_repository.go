package repository

import (
	"context"
	"time"

	"printshop/internal/domain/model"
)

type PaymentListFilter struct {
	Page    int
	Limit   int
	Status  string
	OrderID *int64

	// 指定時はその顧客の注文に紐づく支払いだけ（ordersとJOIN）
	UserID *int64
}

type PaymentRepository interface {
	FindByID(ctx context.Context, paymentID int64) (model.Payment, error)

	// active（rejected以外）な支払いを探す。二重提出チェック用。
	FindActiveByOrderID(ctx context.Context, orderID int64) (model.Payment, bool, error)

	// 注文の最新の支払い（ステータス照会用）
	FindLatestByOrderID(ctx context.Context, orderID int64) (model.Payment, bool, error)

	// 部分ユニーク制約（注文ごとにactiveは1件）に当たるとErrConflict
	Create(ctx context.Context, p model.Payment) (int64, error)

	// pending中の参照コード・電話番号の修正
	Update(ctx context.Context, p model.Payment) error

	// statusがfromのときだけ終端へ進める。falseは別の検証が先に入った。
	FinalizeIf(ctx context.Context, paymentID int64, from model.PaymentStatus, to model.PaymentStatus, verifiedBy int64, at time.Time) (bool, error)

	Delete(ctx context.Context, paymentID int64) (bool, error)

	List(ctx context.Context, f PaymentListFilter) ([]model.Payment, int64, error)
}
