package repository

import (
	"context"
	"time"

	"printshop/internal/domain/model"
)

type CustomImageListFilter struct {
	Page        int
	Limit       int
	OrderItemID *int64
	ProductID   *int64
	HasProduct  *bool

	// 指定時はその顧客がアップロードした画像だけ
	UploaderID *int64
}

type CustomImageRepository interface {
	FindByID(ctx context.Context, imageID int64) (model.CustomImage, error)

	// 明細にすでに画像が付いているか（1明細1枚）
	FindByOrderItemID(ctx context.Context, orderItemID int64) (model.CustomImage, bool, error)

	// ユニーク制約（order_item_id）に当たるとErrConflict
	Create(ctx context.Context, img model.CustomImage) (int64, error)

	// approval_statusがpendingのときだけ全体を更新する。
	// falseは承認/却下が先に入ったということ。
	UpdateIfPending(ctx context.Context, img model.CustomImage) (bool, error)

	Delete(ctx context.Context, imageID int64) (bool, error)

	// クリーンアップ対象：保持期限を過ぎてもpendingのままの画像
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]model.CustomImage, error)

	List(ctx context.Context, f CustomImageListFilter) ([]model.CustomImage, int64, error)
}
