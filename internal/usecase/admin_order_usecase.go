package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"printshop/internal/domain/model"
	"printshop/internal/event"
	repo "printshop/internal/repository"

	"go.uber.org/zap"
)

type AdminOrderUsecase struct {
	tx     repo.TransactionManager
	events event.Publisher
	clock  Clock
	log    *zap.Logger
}

func NewAdminOrderUsecase(tx repo.TransactionManager, events event.Publisher, clock Clock, log *zap.Logger) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, events: events, clock: clock, log: log}
}

type AdminOrderListInput struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

type AdminOrderListOutput struct {
	Orders []OrderOutput `json:"orders"`
	Total  int64         `json:"total"`
	Page   int           `json:"page"`
	Limit  int           `json:"limit"`
}

func (u *AdminOrderUsecase) List(ctx context.Context, in AdminOrderListInput) (AdminOrderListOutput, error) {
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 || in.Limit > 100 {
		in.Limit = 20
	}
	if in.Status != "" {
		if _, ok := model.ParseOrderStatus(in.Status); !ok {
			return AdminOrderListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
		}
	}

	var out AdminOrderListOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, repo.AdminOrderListFilter{
			Page:   in.Page,
			Limit:  in.Limit,
			Status: in.Status,
			UserID: in.UserID,
			From:   in.From,
			To:     in.To,
		})
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs := make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}

		out = AdminOrderListOutput{Orders: outs, Total: total, Page: in.Page, Limit: in.Limit}
		return nil
	})

	if err != nil {
		return AdminOrderListOutput{}, err
	}
	return out, nil
}

// スタッフによるステータス変更。遷移表にない変更は弾く。
// cancelledへ倒したときだけ在庫を戻す。変更は監査ログに残す。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, staffID int64, orderID int64, newStatusRaw string) (OrderOutput, error) {
	if staffID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	newStatus, ok := model.ParseOrderStatus(newStatusRaw)
	if !ok {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var out OrderOutput
	var cancelled bool
	var orderNumber string

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if order.Status == newStatus {
			//変更なしはそのまま返す
			items, err := r.OrderItems().ListByOrderID(ctx, orderID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			out = toOrderOutput(order, items)
			return nil
		}

		if order.Status.IsTerminal() {
			return NewHTTPError(http.StatusBadRequest, "order locked")
		}
		if !order.Status.CanTransitionTo(newStatus) {
			return NewHTTPError(http.StatusBadRequest, "invalid status transition")
		}

		changed, err := r.Orders().UpdateStatusIf(ctx, orderID, order.Status, newStatus)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !changed {
			return NewHTTPError(http.StatusConflict, "order status changed, retry")
		}

		//キャンセル時の在庫戻しは遷移を倒せた側だけが行う
		if newStatus == model.OrderStatusCancelled {
			items, err := r.OrderItems().ListByOrderID(ctx, orderID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			for _, it := range items {
				if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
			}
			cancelled = true
		}

		//pending→confirmedの承認者を記録
		if order.Status == model.OrderStatusPending && newStatus == model.OrderStatusConfirmed {
			if err := r.Orders().SetApprovedBy(ctx, orderID, staffID); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			order.ApprovedBy = &staffID
		}

		beforeJSON, _ := json.Marshal(map[string]interface{}{"status": order.Status})
		afterJSON, _ := json.Marshal(map[string]interface{}{"status": newStatus})
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  staffID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		order.Status = newStatus
		orderNumber = order.OrderNumber

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		out = toOrderOutput(order, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}

	if cancelled {
		u.events.Publish(ctx, event.EventOrderCancelled, orderNumber, map[string]interface{}{
			"order_id":     orderID,
			"order_number": orderNumber,
			"cancelled_by": staffID,
		})
	}
	return out, nil
}
