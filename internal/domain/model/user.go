package model

import "time"

// 認証は外部のIDプロバイダ任せ。ここではロールと参照情報だけ持つ。
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleStaff    Role = "STAFF"
	RoleCustomer Role = "CUSTOMER"
)

// ADMINはSTAFF権限を含む
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleStaff
}

type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Role      Role      `gorm:"type:varchar(20);not null;default:'CUSTOMER'" json:"role"`
	Phone     string    `gorm:"type:varchar(255)" json:"phone"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
