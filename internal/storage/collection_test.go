package storage

import (
	"context"
	"testing"
	"time"

	"go-gin-lucky-draw/internal/model"
	apperrors "go-gin-lucky-draw/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollection_Struct(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	receipts := NewCollection[model.Receipt](store, CollectionReceipts)
	now := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		require.NoError(t, receipts.Create(ctx, "INV-001", &model.Receipt{ID: "INV-001", UsedAt: now, HolderPhone: "0900"}))

		got, err := receipts.Get(ctx, "INV-001")
		require.NoError(t, err)
		assert.Equal(t, "0900", got.HolderPhone)
		assert.True(t, now.Equal(got.UsedAt))
	})

	t.Run("Failed - invalid document rejected on write", func(t *testing.T) {
		err := receipts.Create(ctx, "INV-002", &model.Receipt{ID: "INV-002"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidDocument)

		_, err = store.Get(ctx, CollectionReceipts, "INV-002")
		assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	})

	t.Run("Failed - invalid document rejected on read", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, CollectionReceipts, "broken", []byte(`{"id":""}`)))
		_, err := receipts.Get(ctx, "broken")
		assert.ErrorIs(t, err, apperrors.ErrInvalidDocument)

		require.NoError(t, store.Set(ctx, CollectionReceipts, "garbage", []byte(`not json`)))
		_, err = receipts.Get(ctx, "garbage")
		assert.ErrorIs(t, err, apperrors.ErrInvalidDocument)
	})

	t.Run("Failed - nil document", func(t *testing.T) {
		assert.ErrorIs(t, receipts.Set(ctx, "x", nil), apperrors.ErrInvalidDocument)
	})
}

func TestCollection_Map(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	config := NewCollection[model.Inventory](store, CollectionConfig)

	t.Run("Success - update", func(t *testing.T) {
		err := config.Update(ctx, DocPrizeInventory, func(current *model.Inventory) (*model.Inventory, error) {
			assert.Nil(t, current)
			inv := model.Inventory{"v50": {Name: "Voucher 50.000đ", Remaining: 100, Total: 100}}
			return &inv, nil
		})
		require.NoError(t, err)

		err = config.Update(ctx, DocPrizeInventory, func(current *model.Inventory) (*model.Inventory, error) {
			require.NotNil(t, current)
			rec := (*current)["v50"]
			rec.Remaining--
			(*current)["v50"] = rec
			return current, nil
		})
		require.NoError(t, err)

		got, err := config.Get(ctx, DocPrizeInventory)
		require.NoError(t, err)
		assert.Equal(t, 99, (*got)["v50"].Remaining)
	})

	t.Run("Failed - negative remaining rejected", func(t *testing.T) {
		err := config.Update(ctx, DocPrizeInventory, func(current *model.Inventory) (*model.Inventory, error) {
			rec := (*current)["v50"]
			rec.Remaining = -1
			(*current)["v50"] = rec
			return current, nil
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidDocument)

		got, err := config.Get(ctx, DocPrizeInventory)
		require.NoError(t, err)
		assert.Equal(t, 99, (*got)["v50"].Remaining)
	})
}

func TestCollection_List(t *testing.T) {
	ctx := context.Background()
	tickets := NewCollection[model.Ticket](NewMemoryStore(), CollectionTickets)
	now := time.Now().UTC()

	for _, code := range []string{"BB-TET-100001", "BB-TET-100002"} {
		require.NoError(t, tickets.Create(ctx, code, &model.Ticket{Code: code, PrizeID: "v50", ReceiptID: "INV-" + code, IssuedAt: now}))
	}

	list, err := tickets.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
