package repository

import (
	"context"

	"printshop/internal/domain/model"
)

type PickupPointRepository interface {
	FindByID(ctx context.Context, id int64) (model.PickupPoint, error)
	ListActive(ctx context.Context) ([]model.PickupPoint, error)
	Create(ctx context.Context, p model.PickupPoint) (model.PickupPoint, error)
	Update(ctx context.Context, p model.PickupPoint) error
}
