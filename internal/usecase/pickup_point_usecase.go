package usecase

import (
	"context"
	"net/http"
	"strings"

	"printshop/internal/domain/model"
	repo "printshop/internal/repository"
)

type PickupPointUsecase struct {
	pickupRepo repo.PickupPointRepository
	clock      Clock
}

func NewPickupPointUsecase(pickupRepo repo.PickupPointRepository, clock Clock) *PickupPointUsecase {
	return &PickupPointUsecase{pickupRepo: pickupRepo, clock: clock}
}

// 公開一覧（activeのみ）
func (u *PickupPointUsecase) ListActive(ctx context.Context) ([]model.PickupPoint, error) {
	items, err := u.pickupRepo.ListActive(ctx)
	if err != nil {
		return []model.PickupPoint{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return items, nil
}

type PickupPointInput struct {
	Name            string `json:"name"`
	LocationDetails string `json:"location_details"`
	City            string `json:"city"`
	IsActive        bool   `json:"is_active"`
}

func (u *PickupPointUsecase) AdminCreate(ctx context.Context, adminUserID int64, in PickupPointInput) (model.PickupPoint, error) {
	if adminUserID <= 0 {
		return model.PickupPoint{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.Name) == "" {
		return model.PickupPoint{}, NewHTTPError(http.StatusBadRequest, "name required")
	}

	now := u.clock.Now()
	p, err := u.pickupRepo.Create(ctx, model.PickupPoint{
		Name:            strings.TrimSpace(in.Name),
		LocationDetails: in.LocationDetails,
		City:            in.City,
		IsActive:        in.IsActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		return model.PickupPoint{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return p, nil
}

func (u *PickupPointUsecase) AdminUpdate(ctx context.Context, adminUserID int64, id int64, in PickupPointInput) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if id <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if strings.TrimSpace(in.Name) == "" {
		return NewHTTPError(http.StatusBadRequest, "name required")
	}

	err := u.pickupRepo.Update(ctx, model.PickupPoint{
		ID:              id,
		Name:            strings.TrimSpace(in.Name),
		LocationDetails: in.LocationDetails,
		City:            in.City,
		IsActive:        in.IsActive,
		UpdatedAt:       u.clock.Now(),
	})
	if err == repo.ErrNotFound {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}
