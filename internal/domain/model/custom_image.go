package model

import "time"

type ImageApprovalStatus string

const (
	ImageStatusPending  ImageApprovalStatus = "pending"
	ImageStatusApproved ImageApprovalStatus = "approved"
	ImageStatusRejected ImageApprovalStatus = "rejected"
)

// 画像承認も支払い検証と同じpending→終端の形
var ImageReview = Review[ImageApprovalStatus]{
	Pending:  ImageStatusPending,
	Accepted: ImageStatusApproved,
	Rejected: ImageStatusRejected,
}

func (s ImageApprovalStatus) IsTerminal() bool {
	return ImageReview.IsTerminal(s)
}

// 印刷用のアップロード画像。OrderItem未決定の間はtemporary扱い。
type CustomImage struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	// 1明細につき画像は1枚まで
	OrderItemID *int64 `gorm:"uniqueIndex" json:"order_item_id"`

	ProductID       *int64              `gorm:"index" json:"product_id"`
	UploaderID      int64               `gorm:"not null;index" json:"uploader_id"`
	StorageKey      string              `gorm:"type:text;not null" json:"storage_key"`
	ImageName       string              `gorm:"type:varchar(255)" json:"image_name"`
	ApprovalStatus  ImageApprovalStatus `gorm:"type:varchar(20);not null;index" json:"approval_status"`
	ApprovedBy      *int64              `json:"approved_by"`
	ApprovalDate    *time.Time          `json:"approval_date"`
	RejectionReason string              `gorm:"type:text" json:"rejection_reason"`
	IsTemporary     bool                `gorm:"not null;default:false" json:"is_temporary"`
	UploadDate      time.Time           `gorm:"not null;autoCreateTime;index" json:"upload_date"`
}
