package mocks

import (
	"context"

	"go-gin-lucky-draw/internal/model"

	"github.com/stretchr/testify/mock"
)

type LuckyDrawServiceMock struct {
	mock.Mock
}

// NewLuckyDrawServiceMock 測試結束時自動檢查 expectations
func NewLuckyDrawServiceMock(t interface {
	mock.TestingT
	Cleanup(func())
}) *LuckyDrawServiceMock {
	m := &LuckyDrawServiceMock{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *LuckyDrawServiceMock) Init(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *LuckyDrawServiceMock) IsInvoiceUsed(ctx context.Context, receiptID string) (bool, error) {
	args := m.Called(ctx, receiptID)
	return args.Bool(0), args.Error(1)
}

func (m *LuckyDrawServiceMock) MarkInvoiceUsed(ctx context.Context, receiptID string, holder model.Holder) error {
	args := m.Called(ctx, receiptID, holder)
	return args.Error(0)
}

func (m *LuckyDrawServiceMock) GetPrizeInventory(ctx context.Context) (model.Inventory, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(model.Inventory), args.Error(1)
}

func (m *LuckyDrawServiceMock) DeductPrize(ctx context.Context, prizeID string) (bool, error) {
	args := m.Called(ctx, prizeID)
	return args.Bool(0), args.Error(1)
}

func (m *LuckyDrawServiceMock) SaveTicket(ctx context.Context, draft model.TicketDraft) (string, error) {
	args := m.Called(ctx, draft)
	return args.String(0), args.Error(1)
}

func (m *LuckyDrawServiceMock) GetAllTickets(ctx context.Context) ([]*model.Ticket, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Ticket), args.Error(1)
}

func (m *LuckyDrawServiceMock) Redeem(ctx context.Context, req model.RedeemRequest) (*model.Ticket, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Ticket), args.Error(1)
}

func (m *LuckyDrawServiceMock) Claim(ctx context.Context, receiptID string, holder model.Holder) (*model.Ticket, error) {
	args := m.Called(ctx, receiptID, holder)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Ticket), args.Error(1)
}

func (m *LuckyDrawServiceMock) FindTicket(ctx context.Context, code string) (*model.Ticket, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Ticket), args.Error(1)
}

func (m *LuckyDrawServiceMock) FindTicketByReceipt(ctx context.Context, receiptID string) (*model.Ticket, error) {
	args := m.Called(ctx, receiptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Ticket), args.Error(1)
}

func (m *LuckyDrawServiceMock) IssuePending(ctx context.Context, pending *model.PendingIssue) error {
	args := m.Called(ctx, pending)
	return args.Error(0)
}

func (m *LuckyDrawServiceMock) Catalog() []model.PrizeDefinition {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]model.PrizeDefinition)
}

func (m *LuckyDrawServiceMock) Status(ctx context.Context) (*model.ServiceStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ServiceStatus), args.Error(1)
}

func (m *LuckyDrawServiceMock) Audit(ctx context.Context) (*model.AuditReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AuditReport), args.Error(1)
}
