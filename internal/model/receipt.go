package model

import "time"

// Receipt 已使用的發票，建立後不可修改或刪除
type Receipt struct {
	ID          string    `json:"id" validate:"required"`
	UsedAt      time.Time `json:"usedAt" validate:"required"`
	HolderPhone string    `json:"userPhone"`
}

// Holder 參加者資料
type Holder struct {
	Name    string `json:"name" form:"name" binding:"required"`
	Phone   string `json:"phone" form:"phone" binding:"required"`
	Store   string `json:"store" form:"store"`
	Product string `json:"product" form:"product"`
}

// DrawEntitlement 發票登記後可抽獎一次
type DrawEntitlement struct {
	ReceiptID  string     `json:"receiptId" validate:"required"`
	ReservedAt time.Time  `json:"reservedAt"`
	ConsumedAt *time.Time `json:"consumedAt,omitempty"`
	// ClaimID 這次抽獎的識別，釋放資格時比對用
	ClaimID string `json:"claimId,omitempty"`
}

// Consumed 是否已抽過
func (e *DrawEntitlement) Consumed() bool {
	return e.ConsumedAt != nil
}
