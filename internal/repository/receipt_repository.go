package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-gin-lucky-draw/internal/model"
	"go-gin-lucky-draw/internal/storage"
	apperrors "go-gin-lucky-draw/pkg/app_errors"

	"github.com/google/uuid"
)

type ReceiptRepository interface {
	// 查詢發票是否已使用，沒有副作用
	IsUsed(ctx context.Context, receiptID string) (bool, error)
	// 登記發票：檢查與標記為同一個原子操作，重複登記回傳 ErrAlreadyUsed
	Reserve(ctx context.Context, receiptID string, holder model.Holder) (*model.Receipt, error)
	// 使用抽獎資格，每張發票只能成功一次，回傳這次使用的 claim id
	ConsumeEntitlement(ctx context.Context, receiptID string) (string, error)
	// 抽獎暫時失敗時歸還資格，只有 claim id 相同才會清除
	ReleaseEntitlement(ctx context.Context, receiptID, claimID string) error
	// 同一位參加者重送已登記的發票，資格還沒用掉時回傳 nil，否則 ErrAlreadyUsed
	Resume(ctx context.Context, receiptID string, holder model.Holder) error
	Find(ctx context.Context, receiptID string) (*model.Receipt, error)
}

type ReceiptRepositoryImpl struct {
	receipts     *storage.Collection[model.Receipt]
	entitlements *storage.Collection[model.DrawEntitlement]
	now          func() time.Time
}

func NewReceiptRepository(store storage.Store) ReceiptRepository {
	return &ReceiptRepositoryImpl{
		receipts:     storage.NewCollection[model.Receipt](store, storage.CollectionReceipts),
		entitlements: storage.NewCollection[model.DrawEntitlement](store, storage.CollectionEntitlements),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeReceiptID 去除前後空白，空字串回傳 ErrInvalidInput
func NormalizeReceiptID(receiptID string) (string, error) {
	id := strings.TrimSpace(receiptID)
	if id == "" {
		return "", fmt.Errorf("%w: receipt id is empty", apperrors.ErrInvalidInput)
	}
	return id, nil
}

func (r *ReceiptRepositoryImpl) IsUsed(ctx context.Context, receiptID string) (bool, error) {
	id, err := NormalizeReceiptID(receiptID)
	if err != nil {
		return false, err
	}

	_, err = r.receipts.Get(ctx, id)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *ReceiptRepositoryImpl) Find(ctx context.Context, receiptID string) (*model.Receipt, error) {
	id, err := NormalizeReceiptID(receiptID)
	if err != nil {
		return nil, err
	}
	return r.receipts.Get(ctx, id)
}

func (r *ReceiptRepositoryImpl) Reserve(ctx context.Context, receiptID string, holder model.Holder) (*model.Receipt, error) {
	id, err := NormalizeReceiptID(receiptID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	receipt := &model.Receipt{
		ID:          id,
		UsedAt:      now,
		HolderPhone: holder.Phone,
	}

	// create-if-absent，不做先查再寫
	err = r.receipts.Create(ctx, id, receipt)
	if errors.Is(err, apperrors.ErrDocumentExists) {
		return nil, apperrors.ErrAlreadyUsed
	}
	if err != nil {
		return nil, err
	}

	// 發票已標記；若這一步失敗，發票維持已使用且沒有抽獎資格
	err = r.entitlements.Create(ctx, id, &model.DrawEntitlement{
		ReceiptID:  id,
		ReservedAt: now,
	})
	if err != nil && !errors.Is(err, apperrors.ErrDocumentExists) {
		return receipt, fmt.Errorf("create draw entitlement: %w", err)
	}

	return receipt, nil
}

func (r *ReceiptRepositoryImpl) ConsumeEntitlement(ctx context.Context, receiptID string) (string, error) {
	id, err := NormalizeReceiptID(receiptID)
	if err != nil {
		return "", err
	}

	claimID := uuid.New().String()
	err = r.entitlements.Update(ctx, id, func(current *model.DrawEntitlement) (*model.DrawEntitlement, error) {
		if current == nil {
			return nil, apperrors.ErrNoPendingRedemption
		}
		if current.Consumed() {
			// 上一次寫入的回應遺失後重跑，仍算這次成功
			if current.ClaimID == claimID {
				return nil, nil
			}
			return nil, apperrors.ErrAlreadyUsed
		}
		consumedAt := r.now()
		current.ConsumedAt = &consumedAt
		current.ClaimID = claimID
		return current, nil
	})
	if err != nil {
		return "", err
	}
	return claimID, nil
}

func (r *ReceiptRepositoryImpl) ReleaseEntitlement(ctx context.Context, receiptID, claimID string) error {
	id, err := NormalizeReceiptID(receiptID)
	if err != nil {
		return err
	}

	return r.entitlements.Update(ctx, id, func(current *model.DrawEntitlement) (*model.DrawEntitlement, error) {
		if current == nil || current.ClaimID != claimID {
			return nil, nil
		}
		current.ConsumedAt = nil
		current.ClaimID = ""
		return current, nil
	})
}

func (r *ReceiptRepositoryImpl) Resume(ctx context.Context, receiptID string, holder model.Holder) error {
	id, err := NormalizeReceiptID(receiptID)
	if err != nil {
		return err
	}

	receipt, err := r.receipts.Get(ctx, id)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		return apperrors.ErrNoPendingRedemption
	}
	if err != nil {
		return err
	}
	if receipt.HolderPhone != holder.Phone {
		return apperrors.ErrAlreadyUsed
	}

	// Reserve 在建立資格前失敗時補上
	err = r.entitlements.Create(ctx, id, &model.DrawEntitlement{
		ReceiptID:  id,
		ReservedAt: receipt.UsedAt,
	})
	if err != nil && !errors.Is(err, apperrors.ErrDocumentExists) {
		return err
	}

	entitlement, err := r.entitlements.Get(ctx, id)
	if err != nil {
		return err
	}
	if entitlement.Consumed() {
		return apperrors.ErrAlreadyUsed
	}
	return nil
}
