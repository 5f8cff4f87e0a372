package model

import (
	"fmt"
	"sort"
)

// PrizeDefinition 獎品設定，啟動時載入後不再變動
type PrizeDefinition struct {
	ID         string  `json:"id" yaml:"id" validate:"required"`
	Name       string  `json:"name" yaml:"name" validate:"required"`
	Weight     float64 `json:"weight" yaml:"weight" validate:"gt=0,lte=1"`
	TotalStock int     `json:"total_stock" yaml:"total_stock" validate:"gte=0"`
}

// InventoryRecord 單一獎品的庫存
type InventoryRecord struct {
	PrizeID   string `json:"-"`
	Name      string `json:"name" validate:"required"`
	Remaining int    `json:"remaining" validate:"gte=0,ltefield=Total"`
	Total     int    `json:"total" validate:"gte=0"`
}

// InStock 是否還有庫存
func (r InventoryRecord) InStock() bool {
	return r.Remaining > 0
}

// Issued 已發出的數量
func (r InventoryRecord) Issued() int {
	return r.Total - r.Remaining
}

// Inventory prizeId -> 庫存，對應 config/prize_inventory 文件
type Inventory map[string]InventoryRecord

// Validate 檢查每筆紀錄 0 <= remaining <= total
func (inv Inventory) Validate() error {
	for id, rec := range inv {
		if rec.Remaining < 0 || rec.Remaining > rec.Total {
			return fmt.Errorf("prize %s: remaining %d out of range [0, %d]", id, rec.Remaining, rec.Total)
		}
	}
	return nil
}

// Clone 深拷貝，snapshot 給呼叫端後不會被後續寫入影響
func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	for id, rec := range inv {
		rec.PrizeID = id
		out[id] = rec
	}
	return out
}

// IDs 依字母排序的 prizeId
func (inv Inventory) IDs() []string {
	ids := make([]string, 0, len(inv))
	for id := range inv {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NewInventoryRecord 依設定初始化庫存
func NewInventoryRecord(def PrizeDefinition) InventoryRecord {
	return InventoryRecord{
		PrizeID:   def.ID,
		Name:      def.Name,
		Remaining: def.TotalStock,
		Total:     def.TotalStock,
	}
}
