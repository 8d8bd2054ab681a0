package repository

import (
	"context"
	"errors"
	"time"

	"printshop/internal/domain/model"
	repo "printshop/internal/repository"

	"gorm.io/gorm"
)

type CustomImageGormRepository struct {
	db *gorm.DB
}

func NewCustomImageGormRepository(db *gorm.DB) *CustomImageGormRepository {
	return &CustomImageGormRepository{db: db}
}

func (r *CustomImageGormRepository) FindByID(ctx context.Context, imageID int64) (model.CustomImage, error) {
	var img model.CustomImage
	err := r.db.WithContext(ctx).Where("id = ?", imageID).First(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CustomImage{}, repo.ErrNotFound
	}
	if err != nil {
		return model.CustomImage{}, err
	}
	return img, nil
}

func (r *CustomImageGormRepository) FindByOrderItemID(ctx context.Context, orderItemID int64) (model.CustomImage, bool, error) {
	var img model.CustomImage
	err := r.db.WithContext(ctx).Where("order_item_id = ?", orderItemID).First(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CustomImage{}, false, nil
	}
	if err != nil {
		return model.CustomImage{}, false, err
	}
	return img, true, nil
}

func (r *CustomImageGormRepository) Create(ctx context.Context, img model.CustomImage) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&img).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, repo.ErrConflict
		}
		return 0, err
	}
	return img.ID, nil
}

// pendingのときだけ全フィールドを更新。承認・却下・アタッチの直列化に使う。
func (r *CustomImageGormRepository) UpdateIfPending(ctx context.Context, img model.CustomImage) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.CustomImage{}).
		Where("id = ? AND approval_status = ?", img.ID, model.ImageStatusPending).
		Updates(map[string]interface{}{
			"order_item_id":    img.OrderItemID,
			"product_id":       img.ProductID,
			"storage_key":      img.StorageKey,
			"image_name":       img.ImageName,
			"approval_status":  img.ApprovalStatus,
			"approved_by":      img.ApprovedBy,
			"approval_date":    img.ApprovalDate,
			"rejection_reason": img.RejectionReason,
			"is_temporary":     img.IsTemporary,
		})

	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, repo.ErrConflict
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *CustomImageGormRepository) Delete(ctx context.Context, imageID int64) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", imageID).Delete(&model.CustomImage{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *CustomImageGormRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]model.CustomImage, error) {
	var items []model.CustomImage
	err := r.db.WithContext(ctx).
		Where("approval_status = ? AND upload_date < ?", model.ImageStatusPending, cutoff).
		Order("upload_date asc").
		Find(&items).Error
	if err != nil {
		return []model.CustomImage{}, err
	}
	return items, nil
}

func (r *CustomImageGormRepository) List(ctx context.Context, f repo.CustomImageListFilter) ([]model.CustomImage, int64, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	q := r.db.WithContext(ctx).Model(&model.CustomImage{})

	if f.UploaderID != nil {
		q = q.Where("uploader_id = ?", *f.UploaderID)
	}
	if f.OrderItemID != nil {
		q = q.Where("order_item_id = ?", *f.OrderItemID)
	}
	if f.ProductID != nil {
		q = q.Where("product_id = ?", *f.ProductID)
	}
	if f.HasProduct != nil {
		if *f.HasProduct {
			q = q.Where("product_id IS NOT NULL")
		} else {
			q = q.Where("product_id IS NULL")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return []model.CustomImage{}, 0, err
	}

	var items []model.CustomImage
	offset := (f.Page - 1) * f.Limit
	if err := q.Order("upload_date desc").Limit(f.Limit).Offset(offset).Find(&items).Error; err != nil {
		return []model.CustomImage{}, 0, err
	}

	return items, total, nil
}
