package model

import "time"

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusVerified PaymentStatus = "verified"
	PaymentStatusRejected PaymentStatus = "rejected"
)

// 支払い検証の遷移はReviewに寄せる
var PaymentReview = Review[PaymentStatus]{
	Pending:  PaymentStatusPending,
	Accepted: PaymentStatusVerified,
	Rejected: PaymentStatusRejected,
}

func (s PaymentStatus) IsTerminal() bool {
	return PaymentReview.IsTerminal(s)
}

// activeな支払い（pending/verified）は同じ注文への再提出をブロックする
func (s PaymentStatus) IsActive() bool {
	return s == PaymentStatusPending || s == PaymentStatusVerified
}

type Payment struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	// rejected以外は注文ごとに1件だけ（部分ユニークでDB側でも直列化する）
	OrderID int64 `gorm:"not null;index;uniqueIndex:uq_payments_active_order,where:status <> 'rejected'" json:"order_id"`

	ReferenceCode string        `gorm:"type:varchar(255);not null" json:"reference_code"`
	Amount        int64         `gorm:"not null" json:"amount"`
	Status        PaymentStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	PhoneNumber   string        `gorm:"type:varchar(255);not null" json:"phone_number"`
	PaymentDate   time.Time     `gorm:"not null;autoCreateTime" json:"payment_date"`
	VerifiedBy    *int64        `json:"verified_by"`
	VerifiedAt    *time.Time    `json:"verified_at"`
}
