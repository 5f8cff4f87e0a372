package draw

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"go-gin-lucky-draw/internal/model"
	apperrors "go-gin-lucky-draw/pkg/app_errors"
	"go-gin-lucky-draw/pkg/logger"

	"go.uber.org/zap"
)

const DefaultMaxAttempts = 5

// Inventory Allocator 需要的庫存操作
type Inventory interface {
	Snapshot(ctx context.Context) (model.Inventory, error)
	TryDecrement(ctx context.Context, prizeID string) error
}

// RandomSource 回傳 [0,1) 的亂數
type RandomSource func() float64

type Allocator struct {
	inventory   Inventory
	catalog     []model.PrizeDefinition
	random      RandomSource
	maxAttempts int
}

type Option func(*Allocator)

func WithRandomSource(random RandomSource) Option {
	return func(a *Allocator) { a.random = random }
}

func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

func NewAllocator(inventory Inventory, catalog []model.PrizeDefinition, opts ...Option) *Allocator {
	a := &Allocator{
		inventory:   inventory,
		catalog:     catalog,
		random:      rand.Float64,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

/*
Draw 抽獎並扣庫存

 1. 讀取庫存 snapshot
 2. 依權重選出獎品
 3. 原子扣減；被別人搶走最後一份時，以新的 snapshot 重抽
 4. 全部沒庫存回傳 ErrExhausted，重試用完回傳 ErrOutOfStock
*/
func (a *Allocator) Draw(ctx context.Context) (*model.PrizeDefinition, error) {
	log := logger.WithComponent("allocator")

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		snapshot, err := a.inventory.Snapshot(ctx)
		if err != nil {
			return nil, err
		}

		prizeID, err := SelectPrize(a.catalog, snapshot, a.random())
		if err != nil {
			return nil, err
		}

		err = a.inventory.TryDecrement(ctx, prizeID)
		if err == nil {
			return a.definition(prizeID)
		}
		if !errors.Is(err, apperrors.ErrOutOfStock) {
			return nil, err
		}
		log.Debug("prize taken concurrently, redrawing", zap.String("prize_id", prizeID), zap.Int("attempt", attempt))
	}

	return nil, fmt.Errorf("%w: gave up after %d attempts", apperrors.ErrOutOfStock, a.maxAttempts)
}

func (a *Allocator) definition(prizeID string) (*model.PrizeDefinition, error) {
	for i := range a.catalog {
		if a.catalog[i].ID == prizeID {
			def := a.catalog[i]
			return &def, nil
		}
	}
	return nil, apperrors.ErrPrizeNotFound
}
