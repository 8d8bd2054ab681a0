package model

import "time"

type OrderStatus string

const (
	OrderStatusDraft      OrderStatus = "draft"
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusReturned   OrderStatus = "returned"
)

// 許可された遷移だけtrue
var orderStatusNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusDraft:      {OrderStatusPending: true, OrderStatusCancelled: true},
	OrderStatusPending:    {OrderStatusConfirmed: true, OrderStatusCancelled: true},
	OrderStatusConfirmed:  {OrderStatusProcessing: true, OrderStatusShipped: true, OrderStatusDelivered: true, OrderStatusCancelled: true},
	OrderStatusProcessing: {OrderStatusShipped: true, OrderStatusDelivered: true, OrderStatusCancelled: true},
	OrderStatusShipped:    {OrderStatusDelivered: true, OrderStatusCancelled: true, OrderStatusReturned: true},
	OrderStatusDelivered:  {OrderStatusReturned: true},
	OrderStatusCancelled:  {},
	OrderStatusReturned:   {},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusDraft, OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled, OrderStatusReturned:
		return OrderStatus(s), true
	}
	return "", false
}

func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	return orderStatusNext[s][to]
}

// delivered/cancelled/returnedは終端。以降のステータス編集は受け付けない。
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusReturned
}

// 明細の追加・削除が許されるのはdraft/pendingだけ
func (s OrderStatus) IsModifiable() bool {
	return s == OrderStatusDraft || s == OrderStatusPending
}

type Order struct {
	ID              int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64       `gorm:"not null;index" json:"user_id"`
	OrderNumber     string      `gorm:"type:varchar(255);not null;uniqueIndex" json:"order_number"`
	Status          OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalAmount     int64       `gorm:"not null" json:"total_amount"`
	CustomerName    string      `gorm:"type:varchar(255)" json:"customer_name"`
	CustomerPhone   string      `gorm:"type:varchar(255)" json:"customer_phone"`
	DeliveryAddress string      `gorm:"type:text" json:"delivery_address"`
	City            string      `gorm:"type:varchar(255)" json:"city"`
	PickupPointID   *int64      `gorm:"index" json:"pickup_point_id"`
	OrderNotes      string      `gorm:"type:text" json:"order_notes"`
	ApprovedBy      *int64      `gorm:"index" json:"approved_by"`
	CreatedAt       time.Time   `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 顧客情報が揃ったらdraftをpendingへ上げる
func (o Order) HasCustomerInfo() bool {
	return o.CustomerName != "" && o.CustomerPhone != ""
}
