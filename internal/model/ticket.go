package model

import "time"

// Ticket 中獎票券，只新增不修改
type Ticket struct {
	Code        string    `json:"code" validate:"required"`
	PrizeID     string    `json:"prizeId" validate:"required"`
	PrizeName   string    `json:"prizeName"`
	HolderName  string    `json:"name"`
	HolderPhone string    `json:"phone"`
	Store       string    `json:"store"`
	Product     string    `json:"product"`
	ReceiptID   string    `json:"invoice" validate:"required"`
	IssuedAt    time.Time `json:"createdAt" validate:"required"`
}

// TicketDraft 發券前的資料，code 與 issuedAt 由 ledger 產生
type TicketDraft struct {
	PrizeID     string `json:"prizeId" binding:"required"`
	PrizeName   string `json:"prizeName"`
	HolderName  string `json:"name" binding:"required"`
	HolderPhone string `json:"phone" binding:"required"`
	Store       string `json:"store"`
	Product     string `json:"product"`
	ReceiptID   string `json:"invoice" binding:"required"`
}

// NewTicketDraft 以抽中的獎品與參加者資料組成 draft
func NewTicketDraft(receiptID string, holder Holder, prize PrizeDefinition) TicketDraft {
	return TicketDraft{
		PrizeID:     prize.ID,
		PrizeName:   prize.Name,
		HolderName:  holder.Name,
		HolderPhone: holder.Phone,
		Store:       holder.Store,
		Product:     holder.Product,
		ReceiptID:   receiptID,
	}
}

// TicketReceiptIndex receiptId -> code
type TicketReceiptIndex struct {
	ReceiptID string `json:"receiptId" validate:"required"`
	Code      string `json:"code" validate:"required"`
}

// PendingIssue 已扣庫存但尚未寫入 ledger 的票券，由 worker 補發
type PendingIssue struct {
	RequestID string      `json:"request_id"`
	Draft     TicketDraft `json:"draft"`
	QueuedAt  time.Time   `json:"queued_at"`
}

// RedeemRequest 一次完成登記、抽獎、發券
type RedeemRequest struct {
	ReceiptID string `json:"invoice" binding:"required"`
	Holder
}

// RedemptionResponse 兩段式流程第一步的回應
type RedemptionResponse struct {
	ReceiptID string `json:"invoice"`
	Reserved  bool   `json:"reserved"`
}

// DeductResponse 手動扣庫存的結果
type DeductResponse struct {
	PrizeID  string `json:"prizeId"`
	Deducted bool   `json:"deducted"`
}
