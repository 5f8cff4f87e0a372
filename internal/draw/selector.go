package draw

import (
	"go-gin-lucky-draw/internal/model"
	apperrors "go-gin-lucky-draw/pkg/app_errors"
)

// SelectPrize 依權重抽出一個有庫存的獎品，uniform 須在 [0,1)。
// 只在有庫存的獎品間重新正規化權重，依設定順序累加，最後一個有庫存的獎品為保底。
// 全部沒庫存時回傳 ErrExhausted。
func SelectPrize(defs []model.PrizeDefinition, snapshot model.Inventory, uniform float64) (string, error) {
	available := make([]model.PrizeDefinition, 0, len(defs))
	total := 0.0
	for _, def := range defs {
		if rec, ok := snapshot[def.ID]; ok && rec.InStock() {
			available = append(available, def)
			total += def.Weight
		}
	}
	if len(available) == 0 {
		return "", apperrors.ErrExhausted
	}

	r := uniform * total
	cumulative := 0.0
	for _, def := range available {
		cumulative += def.Weight
		if r < cumulative {
			return def.ID, nil
		}
	}

	// 浮點誤差
	return available[len(available)-1].ID, nil
}
