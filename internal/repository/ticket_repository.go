package repository

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"go-gin-lucky-draw/internal/model"
	"go-gin-lucky-draw/internal/storage"
	apperrors "go-gin-lucky-draw/pkg/app_errors"
	"go-gin-lucky-draw/pkg/logger"

	"go.uber.org/zap"
)

const (
	TicketCodePrefix = "BB-TET-"

	ticketCodeMin = 100000
	ticketCodeMax = 999999

	DefaultMaxCodeAttempts = 10
)

// CodeGenerator 產生票券號碼
type CodeGenerator func() (string, error)

// NewTicketCode BB-TET- 加上 100000~999999 的六位數
func NewTicketCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(ticketCodeMax-ticketCodeMin+1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", TicketCodePrefix, n.Int64()+ticketCodeMin), nil
}

type TicketRepository interface {
	// 發券，同一張發票重複呼叫回傳同一張票
	Issue(ctx context.Context, draft model.TicketDraft) (*model.Ticket, error)
	// 依發券時間新到舊
	List(ctx context.Context) ([]*model.Ticket, error)
	FindByCode(ctx context.Context, code string) (*model.Ticket, error)
	FindByReceipt(ctx context.Context, receiptID string) (*model.Ticket, error)
	// prizeId -> 已發張數
	CountByPrize(ctx context.Context) (map[string]int, error)
}

type TicketOption func(*TicketRepositoryImpl)

func WithCodeGenerator(gen CodeGenerator) TicketOption {
	return func(r *TicketRepositoryImpl) { r.newCode = gen }
}

func WithClock(now func() time.Time) TicketOption {
	return func(r *TicketRepositoryImpl) { r.now = now }
}

func WithMaxCodeAttempts(n int) TicketOption {
	return func(r *TicketRepositoryImpl) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

type TicketRepositoryImpl struct {
	tickets     *storage.Collection[model.Ticket]
	index       *storage.Collection[model.TicketReceiptIndex]
	newCode     CodeGenerator
	now         func() time.Time
	maxAttempts int
}

func NewTicketRepository(store storage.Store, opts ...TicketOption) TicketRepository {
	r := &TicketRepositoryImpl{
		tickets:     storage.NewCollection[model.Ticket](store, storage.CollectionTickets),
		index:       storage.NewCollection[model.TicketReceiptIndex](store, storage.CollectionTicketReceipts),
		newCode:     NewTicketCode,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: DefaultMaxCodeAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

/*
Issue 發券流程

 1. 先以 create-if-absent 佔住 receipt -> code 的索引，已存在代表這張發票發過（或發到一半）
 2. 以 create-if-absent 寫入票券，號碼重複就換號，索引仍是自己的號碼時才更新
 3. 號碼連續重複 maxAttempts 次回傳 ErrCodeCollision
*/
func (r *TicketRepositoryImpl) Issue(ctx context.Context, draft model.TicketDraft) (*model.Ticket, error) {
	receiptID, err := NormalizeReceiptID(draft.ReceiptID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(draft.PrizeID) == "" {
		return nil, fmt.Errorf("%w: prize id is empty", apperrors.ErrInvalidInput)
	}
	log := logger.WithComponent("ledger").With(zap.String("receipt_id", receiptID))

	code, err := r.newCode()
	if err != nil {
		return nil, fmt.Errorf("generate ticket code: %w", err)
	}
	existing, code, err := r.claimIndex(ctx, receiptID, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			next, err := r.newCode()
			if err != nil {
				return nil, fmt.Errorf("generate ticket code: %w", err)
			}
			if code, err = r.moveIndex(ctx, receiptID, code, next); err != nil {
				return nil, err
			}
		}

		ticket := &model.Ticket{
			Code:        code,
			PrizeID:     draft.PrizeID,
			PrizeName:   draft.PrizeName,
			HolderName:  draft.HolderName,
			HolderPhone: draft.HolderPhone,
			Store:       draft.Store,
			Product:     draft.Product,
			ReceiptID:   receiptID,
			IssuedAt:    r.now(),
		}

		err = r.tickets.Create(ctx, code, ticket)
		if err == nil {
			return ticket, nil
		}
		if !errors.Is(err, apperrors.ErrDocumentExists) {
			return nil, err
		}

		// 同一張發票同時在發券，號碼相同的那張就是結果
		if other, gerr := r.tickets.Get(ctx, code); gerr == nil && other.ReceiptID == receiptID {
			return other, nil
		}
		log.Warn("ticket code collision, regenerating", zap.String("code", code), zap.Int("attempt", attempt+1))
	}

	return nil, fmt.Errorf("%w: %d attempts", apperrors.ErrCodeCollision, r.maxAttempts)
}

// moveIndex 索引仍指向 prev 時換成 next；已被同一張發票的其他發券者換掉時，沿用對方的號碼
func (r *TicketRepositoryImpl) moveIndex(ctx context.Context, receiptID, prev, next string) (string, error) {
	code := next
	err := r.index.Update(ctx, receiptID, func(current *model.TicketReceiptIndex) (*model.TicketReceiptIndex, error) {
		if current != nil && current.Code != prev {
			code = current.Code
			return nil, nil
		}
		code = next
		return &model.TicketReceiptIndex{ReceiptID: receiptID, Code: next}, nil
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// claimIndex 佔住發票索引。已發券時回傳該票；發到一半時回傳原本的號碼繼續發
func (r *TicketRepositoryImpl) claimIndex(ctx context.Context, receiptID, code string) (*model.Ticket, string, error) {
	err := r.index.Create(ctx, receiptID, &model.TicketReceiptIndex{ReceiptID: receiptID, Code: code})
	if err == nil {
		return nil, code, nil
	}
	if !errors.Is(err, apperrors.ErrDocumentExists) {
		return nil, "", err
	}

	idx, err := r.index.Get(ctx, receiptID)
	if err != nil {
		return nil, "", err
	}
	ticket, err := r.tickets.Get(ctx, idx.Code)
	if err == nil {
		return ticket, "", nil
	}
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		return nil, idx.Code, nil
	}
	return nil, "", err
}

func (r *TicketRepositoryImpl) List(ctx context.Context) ([]*model.Ticket, error) {
	tickets, err := r.tickets.List(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(tickets, func(i, j int) bool {
		if !tickets[i].IssuedAt.Equal(tickets[j].IssuedAt) {
			return tickets[i].IssuedAt.After(tickets[j].IssuedAt)
		}
		return tickets[i].Code < tickets[j].Code
	})
	return tickets, nil
}

func (r *TicketRepositoryImpl) FindByCode(ctx context.Context, code string) (*model.Ticket, error) {
	ticket, err := r.tickets.Get(ctx, strings.TrimSpace(code))
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		return nil, apperrors.ErrTicketNotFound
	}
	return ticket, err
}

func (r *TicketRepositoryImpl) FindByReceipt(ctx context.Context, receiptID string) (*model.Ticket, error) {
	id, err := NormalizeReceiptID(receiptID)
	if err != nil {
		return nil, err
	}

	idx, err := r.index.Get(ctx, id)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		return nil, apperrors.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.FindByCode(ctx, idx.Code)
}

func (r *TicketRepositoryImpl) CountByPrize(ctx context.Context) (map[string]int, error) {
	tickets, err := r.tickets.List(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, t := range tickets {
		counts[t.PrizeID]++
	}
	return counts, nil
}
