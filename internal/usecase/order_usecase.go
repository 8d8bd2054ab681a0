package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"printshop/internal/domain/model"
	"printshop/internal/event"
	repo "printshop/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderUsecase struct {
	tx     repo.TransactionManager
	events event.Publisher
	clock  Clock
	log    *zap.Logger
}

func NewOrderUsecase(tx repo.TransactionManager, events event.Publisher, clock Clock, log *zap.Logger) *OrderUsecase {
	return &OrderUsecase{tx: tx, events: events, clock: clock, log: log}
}

// 注文番号はタイムスタンプ＋ランダムサフィックス。
// 衝突はほぼ起きないが、コミット前に必ず存在チェックする。
func makeOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + now.Format("20060102150405") + "-" + suffix
}

type OrderItemSpec struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type PlaceOrderInput struct {
	Items           []OrderItemSpec
	CustomerName    string
	CustomerPhone   string
	DeliveryAddress string
	City            string
	PickupPointID   *int64
	OrderNotes      string
}

type UpdateOrderInput struct {
	CustomerName    *string
	CustomerPhone   *string
	DeliveryAddress *string
	City            *string
	PickupPointID   *int64
	OrderNotes      *string
}

type OrderItemOutput struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int64  `json:"quantity"`
	Total     int64  `json:"total_price"`
}

type OrderOutput struct {
	ID            int64             `json:"id"`
	UserID        int64             `json:"user_id"`
	OrderNumber   string            `json:"order_number"`
	Status        string            `json:"status"`
	TotalAmount   int64             `json:"total_amount"`
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	ApprovedBy    *int64            `json:"approved_by"`
	CreatedAt     time.Time         `json:"created_at"`
	Items         []OrderItemOutput `json:"items"`
}

// 注文作成。明細ごとの在庫予約と明細作成は同じトランザクション。
// 1件でも失敗したら全部なかったことになる。
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "order must contain at least one item")
	}
	for _, spec := range in.Items {
		if spec.Quantity <= 0 {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
		}
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//受取場所は指定されていればactive必須
		if in.PickupPointID != nil {
			pp, err := r.PickupPoints().FindByID(ctx, *in.PickupPointID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusBadRequest, "invalid pickup point")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !pp.IsActive {
				return NewHTTPError(http.StatusBadRequest, "invalid pickup point")
			}
		}

		//在庫予約＋スナップショット
		orderItems := make([]model.OrderItem, 0, len(in.Items))
		var total int64 = 0

		for _, spec := range in.Items {
			p, err := r.Products().FindByID(ctx, spec.ProductID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusBadRequest, "product unavailable")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !p.IsActive {
				return NewHTTPError(http.StatusBadRequest, "product unavailable")
			}

			//在庫減算（足りないならfalse）
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, spec.ProductID, spec.Quantity)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !ok {
				return NewHTTPError(http.StatusBadRequest, "insufficient stock")
			}

			orderItems = append(orderItems, model.OrderItem{
				ProductID:           p.ID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   p.Price,
				Quantity:            spec.Quantity,
			})
			total += p.Price * spec.Quantity
		}

		//注文番号（衝突したら作り直す）
		now := u.clock.Now()
		orderNumber := makeOrderNumber(now)
		for i := 0; i < 5; i++ {
			exists, err := r.Orders().ExistsByOrderNumber(ctx, orderNumber)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !exists {
				break
			}
			orderNumber = makeOrderNumber(u.clock.Now())
		}

		//顧客情報が揃っていなければdraftで作る
		order := model.Order{
			UserID:          userID,
			OrderNumber:     orderNumber,
			Status:          model.OrderStatusPending,
			TotalAmount:     total,
			CustomerName:    in.CustomerName,
			CustomerPhone:   in.CustomerPhone,
			DeliveryAddress: in.DeliveryAddress,
			City:            in.City,
			PickupPointID:   in.PickupPointID,
			OrderNotes:      in.OrderNotes,
		}
		if !order.HasCustomerInfo() {
			order.Status = model.OrderStatusDraft
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err == repo.ErrConflict {
			return NewHTTPError(http.StatusConflict, "order number conflict")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		order.ID = orderID
		order.CreatedAt = now
		out = toOrderOutput(order, orderItems)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 明細追加。modifiableな注文だけ。失敗したら追加分は全部戻る。
func (u *OrderUsecase) AddItems(ctx context.Context, userID int64, orderID int64, specs []OrderItemSpec) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(specs) == 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "no items provided")
	}
	for _, spec := range specs {
		if spec.Quantity <= 0 {
			return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
		}
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := u.findOwnedOrder(ctx, r, userID, orderID)
		if err != nil {
			return err
		}
		if !order.Status.IsModifiable() {
			return NewHTTPError(http.StatusBadRequest, "order locked")
		}

		newItems := make([]model.OrderItem, 0, len(specs))
		var delta int64 = 0

		for _, spec := range specs {
			p, err := r.Products().FindByID(ctx, spec.ProductID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusBadRequest, "product unavailable")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !p.IsActive {
				return NewHTTPError(http.StatusBadRequest, "product unavailable")
			}

			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, spec.ProductID, spec.Quantity)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !ok {
				return NewHTTPError(http.StatusBadRequest, "insufficient stock")
			}

			newItems = append(newItems, model.OrderItem{
				ProductID:           p.ID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   p.Price,
				Quantity:            spec.Quantity,
			})
			delta += p.Price * spec.Quantity
		}

		if err := r.OrderItems().CreateBulk(ctx, orderID, newItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.Orders().AddToTotal(ctx, orderID, delta); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		order.TotalAmount += delta
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
	return out, nil
}

// 明細削除。知らないIDは黙ってスキップ。
// 削除できた明細だけ在庫を戻す（Deleteは一度しか成功しない）。
func (u *OrderUsecase) RemoveItems(ctx context.Context, userID int64, orderID int64, itemIDs []int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := u.findOwnedOrder(ctx, r, userID, orderID)
		if err != nil {
			return err
		}
		if !order.Status.IsModifiable() {
			return NewHTTPError(http.StatusBadRequest, "order locked")
		}

		var delta int64 = 0
		for _, itemID := range itemIDs {
			it, err := r.OrderItems().FindByID(ctx, itemID)
			if err == repo.ErrNotFound {
				continue
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			//他の注文の明細は対象外
			if it.OrderID != orderID {
				continue
			}

			deleted, err := r.OrderItems().Delete(ctx, itemID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !deleted {
				continue
			}

			if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			delta -= it.TotalPrice()
		}

		if delta != 0 {
			if err := r.Orders().AddToTotal(ctx, orderID, delta); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		order.TotalAmount += delta
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
	return out, nil
}

// メタ情報更新。statusはここでは絶対に受け付けない（スタッフ編集は別経路）。
// 顧客情報が揃ったらdraft→pendingに上げる。
func (u *OrderUsecase) UpdateOrder(ctx context.Context, userID int64, role model.Role, orderID int64, in UpdateOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var order model.Order
		var err error

		if role.IsStaff() {
			order, err = r.Orders().FindByID(ctx, orderID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		} else {
			order, err = u.findOwnedOrder(ctx, r, userID, orderID)
			if err != nil {
				return err
			}
			if !order.Status.IsModifiable() {
				return NewHTTPError(http.StatusBadRequest, "order locked")
			}
		}
		if order.Status.IsTerminal() {
			return NewHTTPError(http.StatusBadRequest, "order locked")
		}

		if in.PickupPointID != nil {
			pp, err := r.PickupPoints().FindByID(ctx, *in.PickupPointID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusBadRequest, "invalid pickup point")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !pp.IsActive {
				return NewHTTPError(http.StatusBadRequest, "invalid pickup point")
			}
			order.PickupPointID = in.PickupPointID
		}

		if in.CustomerName != nil {
			order.CustomerName = *in.CustomerName
		}
		if in.CustomerPhone != nil {
			order.CustomerPhone = *in.CustomerPhone
		}
		if in.DeliveryAddress != nil {
			order.DeliveryAddress = *in.DeliveryAddress
		}
		if in.City != nil {
			order.City = *in.City
		}
		if in.OrderNotes != nil {
			order.OrderNotes = *in.OrderNotes
		}

		//顧客情報が揃ったらpendingへ
		if order.Status == model.OrderStatusDraft && order.HasCustomerInfo() {
			order.Status = model.OrderStatusPending
		}

		if err := r.Orders().Update(ctx, order); err != nil {
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

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
	return out, nil
}

// キャンセル。顧客はmodifiableな自分の注文だけ、スタッフは終端以外どれでも。
// ステータスを条件付きで一度だけ倒し、倒せた側だけが在庫を戻す。
func (u *OrderUsecase) Cancel(ctx context.Context, actorID int64, role model.Role, orderID int64) error {
	if actorID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var cancelledOrder model.Order

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var order model.Order
		var err error

		if role.IsStaff() {
			order, err = r.Orders().FindByID(ctx, orderID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		} else {
			order, err = u.findOwnedOrder(ctx, r, actorID, orderID)
			if err != nil {
				return err
			}
			if !order.Status.IsModifiable() {
				return NewHTTPError(http.StatusForbidden, "forbidden")
			}
		}

		if order.Status.IsTerminal() {
			return NewHTTPError(http.StatusBadRequest, "order locked")
		}
		if !order.Status.CanTransitionTo(model.OrderStatusCancelled) {
			return NewHTTPError(http.StatusBadRequest, "order locked")
		}

		//別の遷移と競合したら負けた側はここでfalseを見る
		ok, err := r.Orders().UpdateStatusIf(ctx, orderID, order.Status, model.OrderStatusCancelled)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if !ok {
			return NewHTTPError(http.StatusConflict, "order status changed, retry")
		}

		//在庫戻し（全明細）
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		for _, it := range items {
			if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		}

		order.Status = model.OrderStatusCancelled
		cancelledOrder = order
		return nil
	})

	if err != nil {
		return err
	}

	u.events.Publish(ctx, event.EventOrderCancelled, cancelledOrder.OrderNumber, map[string]interface{}{
		"order_id":     cancelledOrder.ID,
		"order_number": cancelledOrder.OrderNumber,
		"user_id":      cancelledOrder.UserID,
	})
	return nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) ([]OrderOutput, int64, error) {
	if userID <= 0 {
		return []OrderOutput{}, 0, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var outs []OrderOutput
	var total int64

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, count, err := r.Orders().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		total = count

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, 0, err
	}
	return outs, total, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, role model.Role, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var order model.Order
		var err error
		if role.IsStaff() {
			order, err = r.Orders().FindByID(ctx, orderID)
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
		} else {
			order, err = u.findOwnedOrder(ctx, r, userID, orderID)
			if err != nil {
				return err
			}
		}

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
	return out, nil
}

// 他人の注文は「存在しない扱い」にする
func (u *OrderUsecase) findOwnedOrder(ctx context.Context, r repo.TxRepos, userID int64, orderID int64) (model.Order, error) {
	o, err := r.Orders().FindByID(ctx, orderID)
	if err == repo.ErrNotFound {
		return model.Order{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Order{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if o.UserID != userID {
		return model.Order{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return o, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			UnitPrice: it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			Total:     it.TotalPrice(),
		})
	}

	return OrderOutput{
		ID:            o.ID,
		UserID:        o.UserID,
		OrderNumber:   o.OrderNumber,
		Status:        string(o.Status),
		TotalAmount:   o.TotalAmount,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		ApprovedBy:    o.ApprovedBy,
		CreatedAt:     o.CreatedAt,
		Items:         outItems,
	}
}
