package repository

import (
	"context"

	"printshop/internal/domain/model"
)

type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
}
