package repository

import (
	"context"
	"errors"

	"go-gin-lucky-draw/internal/model"
	"go-gin-lucky-draw/internal/storage"
	apperrors "go-gin-lucky-draw/pkg/app_errors"
)

type InventoryRepository interface {
	// 目前庫存，缺少的獎品依設定補上
	Snapshot(ctx context.Context) (model.Inventory, error)
	// 原子扣減一份，remaining 為 0 時回傳 ErrOutOfStock
	TryDecrement(ctx context.Context, prizeID string) error
	Catalog() []model.PrizeDefinition
}

type InventoryRepositoryImpl struct {
	config  *storage.Collection[model.Inventory]
	catalog []model.PrizeDefinition
}

func NewInventoryRepository(store storage.Store, catalog []model.PrizeDefinition) InventoryRepository {
	return &InventoryRepositoryImpl{
		config:  storage.NewCollection[model.Inventory](store, storage.CollectionConfig),
		catalog: catalog,
	}
}

func (r *InventoryRepositoryImpl) Catalog() []model.PrizeDefinition {
	out := make([]model.PrizeDefinition, len(r.catalog))
	copy(out, r.catalog)
	return out
}

// fillMissing 只補上缺少的紀錄，已存在的不會被重設
func (r *InventoryRepositoryImpl) fillMissing(inv model.Inventory) bool {
	changed := false
	for _, def := range r.catalog {
		if _, ok := inv[def.ID]; !ok {
			inv[def.ID] = model.NewInventoryRecord(def)
			changed = true
		}
	}
	return changed
}

func (r *InventoryRepositoryImpl) complete(inv model.Inventory) bool {
	for _, def := range r.catalog {
		if _, ok := inv[def.ID]; !ok {
			return false
		}
	}
	return true
}

func (r *InventoryRepositoryImpl) Snapshot(ctx context.Context) (model.Inventory, error) {
	current, err := r.config.Get(ctx, storage.DocPrizeInventory)
	if err == nil && r.complete(*current) {
		return current.Clone(), nil
	}
	if err != nil && !errors.Is(err, apperrors.ErrDocumentNotFound) {
		return nil, err
	}

	// 第一次讀取或設定新增了獎品
	var result model.Inventory
	err = r.config.Update(ctx, storage.DocPrizeInventory, func(current *model.Inventory) (*model.Inventory, error) {
		inv := model.Inventory{}
		if current != nil {
			inv = *current
		}
		changed := r.fillMissing(inv)
		result = inv
		if !changed {
			return nil, nil
		}
		return &inv, nil
	})
	if err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

func (r *InventoryRepositoryImpl) TryDecrement(ctx context.Context, prizeID string) error {
	return r.config.Update(ctx, storage.DocPrizeInventory, func(current *model.Inventory) (*model.Inventory, error) {
		inv := model.Inventory{}
		if current != nil {
			inv = *current
		}
		r.fillMissing(inv)

		rec, ok := inv[prizeID]
		if !ok {
			return nil, apperrors.ErrPrizeNotFound
		}
		if !rec.InStock() {
			return nil, apperrors.ErrOutOfStock
		}
		rec.Remaining--
		inv[prizeID] = rec
		return &inv, nil
	})
}
