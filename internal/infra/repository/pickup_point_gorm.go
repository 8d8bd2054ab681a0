package repository

import (
	"context"
	"errors"

	"printshop/internal/domain/model"
	repo "printshop/internal/repository"

	"gorm.io/gorm"
)

type PickupPointGormRepository struct {
	db *gorm.DB
}

func NewPickupPointGormRepository(db *gorm.DB) *PickupPointGormRepository {
	return &PickupPointGormRepository{db: db}
}

func (r *PickupPointGormRepository) FindByID(ctx context.Context, id int64) (model.PickupPoint, error) {
	var p model.PickupPoint
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PickupPoint{}, repo.ErrNotFound
	}
	if err != nil {
		return model.PickupPoint{}, err
	}
	return p, nil
}

func (r *PickupPointGormRepository) ListActive(ctx context.Context) ([]model.PickupPoint, error) {
	var items []model.PickupPoint
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name asc").
		Find(&items).Error
	if err != nil {
		return []model.PickupPoint{}, err
	}
	return items, nil
}

func (r *PickupPointGormRepository) Create(ctx context.Context, p model.PickupPoint) (model.PickupPoint, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.PickupPoint{}, err
	}
	return p, nil
}

func (r *PickupPointGormRepository) Update(ctx context.Context, p model.PickupPoint) error {
	res := r.db.WithContext(ctx).Model(&model.PickupPoint{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"name":             p.Name,
		"location_details": p.LocationDetails,
		"city":             p.City,
		"is_active":        p.IsActive,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
