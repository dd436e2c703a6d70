package models

import "time"

type PurchaseStatus string

const (
	PurchaseActive   PurchaseStatus = "active"
	PurchaseRefunded PurchaseStatus = "refunded"
	PurchaseExpired  PurchaseStatus = "expired"
)

// ExamPurchase is written by the payment service; this service only
// consults it when starting attempts on paid exams.
type ExamPurchase struct {
	ID     uint           `json:"id" gorm:"primaryKey"`
	UserID string         `json:"user_id" gorm:"not null;size:255;index:idx_purchases_user_exam"`
	ExamID uint           `json:"exam_id" gorm:"not null;index:idx_purchases_user_exam"`
	Status PurchaseStatus `json:"status" gorm:"default:active;index"`

	PurchasedAt time.Time  `json:"purchased_at"`
	ExpiresAt   *time.Time `json:"expires_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ExamPurchase) TableName() string {
	return "exam_purchases"
}

// IsValid reports whether the purchase currently grants access.
func (p *ExamPurchase) IsValid(now time.Time) bool {
	if p.Status != PurchaseActive {
		return false
	}
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return false
	}
	return true
}
