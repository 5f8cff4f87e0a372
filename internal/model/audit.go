package model

import "time"

// PrizeAudit 單一獎品的對帳結果，total - remaining 應等於已發張數
type PrizeAudit struct {
	PrizeID    string `json:"prizeId"`
	Name       string `json:"name"`
	Total      int    `json:"total"`
	Remaining  int    `json:"remaining"`
	Issued     int    `json:"issued"`
	Consistent bool   `json:"consistent"`
}

// AuditReport 庫存與票券對帳。待補發的票券還沒寫入前，差額屬正常
type AuditReport struct {
	CheckedAt     time.Time    `json:"checkedAt"`
	PendingIssues int64        `json:"pendingIssues"`
	Prizes        []PrizeAudit `json:"prizes"`
	Consistent    bool         `json:"consistent"`
}

// ServiceStatus durable 為 false 時資料只存在本機記憶體
type ServiceStatus struct {
	Durable       bool  `json:"durable"`
	PendingIssues int64 `json:"pendingIssues"`
}
