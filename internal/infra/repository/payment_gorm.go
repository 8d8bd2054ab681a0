package repository

import (
	"context"
	"errors"
	"time"

	"printshop/internal/domain/model"
	repo "printshop/internal/repository"

	"gorm.io/gorm"
)

type PaymentGormRepository struct {
	db *gorm.DB
}

func NewPaymentGormRepository(db *gorm.DB) *PaymentGormRepository {
	return &PaymentGormRepository{db: db}
}

func (r *PaymentGormRepository) FindByID(ctx context.Context, paymentID int64) (model.Payment, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).Where("id = ?", paymentID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Payment{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Payment{}, err
	}
	return p, nil
}

func (r *PaymentGormRepository) FindActiveByOrderID(ctx context.Context, orderID int64) (model.Payment, bool, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status <> ?", orderID, model.PaymentStatusRejected).
		First(&p).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Payment{}, false, nil
	}
	if err != nil {
		return model.Payment{}, false, err
	}
	return p, true, nil
}

func (r *PaymentGormRepository) FindLatestByOrderID(ctx context.Context, orderID int64) (model.Payment, bool, error) {
	var p model.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id desc").
		First(&p).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Payment{}, false, nil
	}
	if err != nil {
		return model.Payment{}, false, err
	}
	return p, true, nil
}

// activeな支払いの部分ユニークに当たったらErrConflict。
// 同時提出はアプリの事前チェックをすり抜けてもここで止まる。
func (r *PaymentGormRepository) Create(ctx context.Context, p model.Payment) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, repo.ErrConflict
		}
		return 0, err
	}
	return p.ID, nil
}

func (r *PaymentGormRepository) Update(ctx context.Context, p model.Payment) error {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"reference_code": p.ReferenceCode,
			"phone_number":   p.PhoneNumber,
		})

	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// statusがfromのときだけ終端へ。2人目の検証者はfalseを見る。
func (r *PaymentGormRepository) FinalizeIf(ctx context.Context, paymentID int64, from model.PaymentStatus, to model.PaymentStatus, verifiedBy int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", paymentID, from).
		Updates(map[string]interface{}{
			"status":      to,
			"verified_by": verifiedBy,
			"verified_at": at,
		})

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PaymentGormRepository) Delete(ctx context.Context, paymentID int64) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", paymentID).Delete(&model.Payment{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PaymentGormRepository) List(ctx context.Context, f repo.PaymentListFilter) ([]model.Payment, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	q := r.db.WithContext(ctx).Model(&model.Payment{})

	//顧客スコープ（自分の注文の支払いだけ）
	if f.UserID != nil {
		q = q.Joins("JOIN orders ON orders.id = payments.order_id").
			Where("orders.user_id = ?", *f.UserID)
	}

	if f.Status != "" {
		q = q.Where("payments.status = ?", f.Status)
	}
	if f.OrderID != nil {
		q = q.Where("payments.order_id = ?", *f.OrderID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.Payment{}, 0, err
	}

	var items []model.Payment
	offset := (f.Page - 1) * f.Limit
	if err := q.Order("payments.id desc").Limit(f.Limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.Payment{}, 0, err
	}

	return items, total, nil
}
