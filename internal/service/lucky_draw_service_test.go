package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"go-gin-lucky-draw/internal/draw"
	"go-gin-lucky-draw/internal/model"
	"go-gin-lucky-draw/internal/queue"
	"go-gin-lucky-draw/internal/repository"
	"go-gin-lucky-draw/internal/storage"
	apperrors "go-gin-lucky-draw/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var ticketCodePattern = regexp.MustCompile(`^BB-TET-\d{6}$`)

type testEnv struct {
	svc     LuckyDrawService
	store   storage.Store
	queue   queue.IssueQueue
	tickets repository.TicketRepository
}

// flakyTickets 前 failures 次 Issue 回傳 ErrStorageUnavailable
type flakyTickets struct {
	repository.TicketRepository
	failures *atomic.Int32
}

func (f *flakyTickets) Issue(ctx context.Context, draft model.TicketDraft) (*model.Ticket, error) {
	if f.failures.Dec() >= 0 {
		return nil, fmt.Errorf("%w: injected", apperrors.ErrStorageUnavailable)
	}
	return f.TicketRepository.Issue(ctx, draft)
}

func defaultCatalog() []model.PrizeDefinition {
	return []model.PrizeDefinition{
		{ID: "v50", Name: "Voucher 50.000đ", Weight: 0.40, TotalStock: 100},
		{ID: "v100", Name: "Voucher 100.000đ", Weight: 0.25, TotalStock: 100},
		{ID: "v150", Name: "Voucher 150.000đ", Weight: 0.15, TotalStock: 100},
		{ID: "doudou", Name: "Thỏ Doudou Babybio", Weight: 0.10, TotalStock: 100},
		{ID: "bear", Name: "Gấu bông Babybio", Weight: 0.10, TotalStock: 100},
	}
}

// flakyInventory 前 failures 次讀庫存回傳 ErrStorageUnavailable，只給 allocator 用
type flakyInventory struct {
	repository.InventoryRepository
	failures *atomic.Int32
}

func (f *flakyInventory) Snapshot(ctx context.Context) (model.Inventory, error) {
	if f.failures.Dec() >= 0 {
		return nil, fmt.Errorf("%w: injected", apperrors.ErrStorageUnavailable)
	}
	return f.InventoryRepository.Snapshot(ctx)
}

type envOptions struct {
	issueFailures int32
	drawFailures  int32
	queueBuffer   int
}

func newTestEnv(t *testing.T, catalog []model.PrizeDefinition, issueFailures int32) *testEnv {
	return newTestEnvWith(t, catalog, envOptions{issueFailures: issueFailures})
}

func newTestEnvWith(t *testing.T, catalog []model.PrizeDefinition, opts envOptions) *testEnv {
	t.Helper()
	if opts.queueBuffer == 0 {
		opts.queueBuffer = 16
	}
	store := storage.NewMemoryStore()
	q := queue.NewIssueQueue(opts.queueBuffer)

	tickets := repository.NewTicketRepository(store)
	var ledger repository.TicketRepository = tickets
	if opts.issueFailures > 0 {
		ledger = &flakyTickets{TicketRepository: tickets, failures: atomic.NewInt32(opts.issueFailures)}
	}

	inventory := repository.NewInventoryRepository(store, catalog)
	var drawInventory draw.Inventory = inventory
	if opts.drawFailures > 0 {
		drawInventory = &flakyInventory{InventoryRepository: inventory, failures: atomic.NewInt32(opts.drawFailures)}
	}

	svc := NewLuckyDrawService(
		store,
		repository.NewReceiptRepository(store),
		inventory,
		ledger,
		draw.NewAllocator(drawInventory, catalog, draw.WithMaxAttempts(20)),
		q,
	)

	_, err := svc.Init(context.Background())
	require.NoError(t, err)

	return &testEnv{svc: svc, store: store, queue: q, tickets: tickets}
}

func testRedeem(receiptID string) model.RedeemRequest {
	return model.RedeemRequest{
		ReceiptID: receiptID,
		Holder:    model.Holder{Name: "Lan", Phone: "0901234567", Store: "Q1", Product: "Babybio Gold"},
	}
}

func assertLedgerMatchesInventory(t *testing.T, env *testEnv) {
	t.Helper()
	report, err := env.svc.Audit(context.Background())
	require.NoError(t, err)
	for _, p := range report.Prizes {
		assert.True(t, p.Consistent, "prize %s: total %d remaining %d issued %d", p.PrizeID, p.Total, p.Remaining, p.Issued)
		assert.GreaterOrEqual(t, p.Remaining, 0)
	}
	assert.True(t, report.Consistent)
}

func TestLuckyDrawService_Init(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultCatalog(), 0)

	durable, err := env.svc.Init(ctx)
	require.NoError(t, err)
	assert.False(t, durable)

	inv, err := env.svc.GetPrizeInventory(ctx)
	require.NoError(t, err)
	assert.Len(t, inv, 5)

	again, err := env.svc.GetPrizeInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, inv, again)
}

func TestLuckyDrawService_Invoice(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		env := newTestEnv(t, defaultCatalog(), 0)

		used, err := env.svc.IsInvoiceUsed(ctx, "INV-001")
		require.NoError(t, err)
		assert.False(t, used)

		require.NoError(t, env.svc.MarkInvoiceUsed(ctx, "INV-001", model.Holder{Phone: "0900"}))

		used, err = env.svc.IsInvoiceUsed(ctx, "INV-001")
		require.NoError(t, err)
		assert.True(t, used)
	})

	t.Run("Failed - ErrAlreadyUsed", func(t *testing.T) {
		env := newTestEnv(t, defaultCatalog(), 0)
		require.NoError(t, env.svc.MarkInvoiceUsed(ctx, "INV-001", model.Holder{Phone: "0900"}))
		assert.ErrorIs(t, env.svc.MarkInvoiceUsed(ctx, "INV-001", model.Holder{Phone: "0911"}), apperrors.ErrAlreadyUsed)
	})
}

func TestLuckyDrawService_DeductPrize(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		env := newTestEnv(t, defaultCatalog(), 0)
		ok, err := env.svc.DeductPrize(ctx, "bear")
		require.NoError(t, err)
		assert.True(t, ok)

		inv, err := env.svc.GetPrizeInventory(ctx)
		require.NoError(t, err)
		assert.Equal(t, 99, inv["bear"].Remaining)
	})

	t.Run("Success - false when out of stock", func(t *testing.T) {
		env := newTestEnv(t, []model.PrizeDefinition{{ID: "x", Name: "X", Weight: 1, TotalStock: 0}}, 0)
		ok, err := env.svc.DeductPrize(ctx, "x")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Failed - unknown prize", func(t *testing.T) {
		env := newTestEnv(t, defaultCatalog(), 0)
		ok, err := env.svc.DeductPrize(ctx, "car")
		assert.ErrorIs(t, err, apperrors.ErrPrizeNotFound)
		assert.False(t, ok)
	})

	t.Run("Concurrent - exactly one true", func(t *testing.T) {
		env := newTestEnv(t, []model.PrizeDefinition{{ID: "x", Name: "X", Weight: 1, TotalStock: 1}}, 0)
		const workers = 50

		var wg sync.WaitGroup
		trues := atomic.NewInt32(0)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := env.svc.DeductPrize(ctx, "x")
				assert.NoError(t, err)
				if ok {
					trues.Inc()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), trues.Load())
		inv, err := env.svc.GetPrizeInventory(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, inv["x"].Remaining)
	})
}

func TestLuckyDrawService_SaveTicket(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultCatalog(), 0)

	code, err := env.svc.SaveTicket(ctx, model.TicketDraft{
		PrizeID: "v50", PrizeName: "Voucher 50.000đ",
		HolderName: "Lan", HolderPhone: "0900", ReceiptID: "INV-001",
	})
	require.NoError(t, err)
	assert.Regexp(t, ticketCodePattern, code)

	tickets, err := env.svc.GetAllTickets(ctx)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, code, tickets[0].Code)

	found, err := env.svc.FindTicket(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "INV-001", found.ReceiptID)
}

func TestLuckyDrawService_Redeem(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		env := newTestEnv(t, defaultCatalog(), 0)

		ticket, err := env.svc.Redeem(ctx, testRedeem("INV-001"))
		require.NoError(t, err)
		assert.Regexp(t, ticketCodePattern, ticket.Code)
		assert.Equal(t, "INV-001", ticket.ReceiptID)
		assert.Equal(t, "Lan", ticket.HolderName)

		inv, err := env.svc.GetPrizeInventory(ctx)
		require.NoError(t, err)
		assert.Equal(t, 99, inv[ticket.PrizeID].Remaining)

		byReceipt, err := env.svc.FindTicketByReceipt(ctx, "INV-001")
		require.NoError(t, err)
		assert.Equal(t, ticket.Code, byReceipt.Code)
		assertLedgerMatchesInventory(t, env)
	})

	t.Run("Failed - duplicate receipt leaves inventory unchanged", func(t *testing.T) {
		env := newTestEnv(t, defaultCatalog(), 0)
		_, err := env.svc.Redeem(ctx, testRedeem("INV-001"))
		require.NoError(t, err)
		before, err := env.svc.GetPrizeInventory(ctx)
		require.NoError(t, err)

		_, err = env.svc.Redeem(ctx, testRedeem("INV-001"))
		assert.ErrorIs(t, err, apperrors.ErrAlreadyUsed)

		after, err := env.svc.GetPrizeInventory(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		assertLedgerMatchesInventory(t, env)
	})

	t.Run("Failed - ErrExhausted", func(t *testing.T) {
		env := newTestEnv(t, []model.PrizeDefinition{{ID: "x", Name: "X", Weight: 1, TotalStock: 1}}, 0)
		_, err := env.svc.Redeem(ctx, testRedeem("INV-001"))
		require.NoError(t, err)

		_, err = env.svc.Redeem(ctx, testRedeem("INV-002"))
		assert.ErrorIs(t, err, apperrors.ErrExhausted)

		used, err := env.svc.IsInvoiceUsed(ctx, "INV-002")
		require.NoError(t, err)
		assert.True(t, used)
	})

	t.Run("Failed - ErrTicketPending then issued by IssuePending", func(t *testing.T) {
		env := newTestEnv(t, defaultCatalog(), 1)

		_, err := env.svc.Redeem(ctx, testRedeem("INV-001"))
		assert.ErrorIs(t, err, apperrors.ErrTicketPending)

		status, err := env.svc.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), status.PendingIssues)

		qctx, cancel := context.WithCancel(ctx)
		defer cancel()
		deliveries, err := env.queue.SubscribePending(qctx)
		require.NoError(t, err)
		d := <-deliveries
		assert.Equal(t, "INV-001", d.Data.Draft.ReceiptID)

		require.NoError(t, env.svc.IssuePending(ctx, d.Data))
		d.Ack()

		ticket, err := env.svc.FindTicketByReceipt(ctx, "INV-001")
		require.NoError(t, err)
		assert.Equal(t, d.Data.Draft.PrizeID, ticket.PrizeID)
		assertLedgerMatchesInventory(t, env)

		// 重複投遞不會多發
		require.NoError(t, env.svc.IssuePending(ctx, d.Data))
		tickets, err := env.svc.GetAllTickets(ctx)
		require.NoError(t, err)
		assert.Len(t, tickets, 1)
	})

	t.Run("Success - same holder retries after storage failure during draw", func(t *testing.T) {
		env := newTestEnvWith(t, defaultCatalog(), envOptions{drawFailures: 1})

		_, err := env.svc.Redeem(ctx, testRedeem("INV-001"))
		assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)

		// 其他人不能拿同一張發票接著抽
		other := testRedeem("INV-001")
		other.Holder.Phone = "0999999999"
		_, err = env.svc.Redeem(ctx, other)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyUsed)

		ticket, err := env.svc.Redeem(ctx, testRedeem("INV-001"))
		require.NoError(t, err)
		assert.Equal(t, "INV-001", ticket.ReceiptID)

		_, err = env.svc.Redeem(ctx, testRedeem("INV-001"))
		assert.ErrorIs(t, err, apperrors.ErrAlreadyUsed)
		assertLedgerMatchesInventory(t, env)
	})

	t.Run("Success - pending issues survive a full queue", func(t *testing.T) {
		// 三次 Redeem 發券失敗，第一次補發也失敗
		env := newTestEnvWith(t, defaultCatalog(), envOptions{issueFailures: 4, queueBuffer: 1})
		qctx, cancel := context.WithCancel(ctx)
		defer cancel()
		deliveries, err := env.queue.SubscribePending(qctx)
		require.NoError(t, err)

		_, err = env.svc.Redeem(ctx, testRedeem("INV-001"))
		require.ErrorIs(t, err, apperrors.ErrTicketPending)
		first := <-deliveries

		for _, id := range []string{"INV-002", "INV-003"} {
			_, err = env.svc.Redeem(ctx, testRedeem(id))
			require.ErrorIs(t, err, apperrors.ErrTicketPending)
		}

		require.Error(t, env.svc.IssuePending(ctx, first.Data))
		first.Nack(true)

		for i := 0; i < 3; i++ {
			d := <-deliveries
			require.NoError(t, env.svc.IssuePending(ctx, d.Data))
			d.Ack()
		}

		tickets, err := env.svc.GetAllTickets(ctx)
		require.NoError(t, err)
		assert.Len(t, tickets, 3)
		assertLedgerMatchesInventory(t, env)
	})

	t.Run("Failed - invalid receipt", func(t *testing.T) {
		env := newTestEnv(t, defaultCatalog(), 0)
		_, err := env.svc.Redeem(ctx, testRedeem("  "))
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Concurrent - no oversell", func(t *testing.T) {
		catalog := []model.PrizeDefinition{
			{ID: "gold", Name: "Gold", Weight: 0.3, TotalStock: 5},
			{ID: "silver", Name: "Silver", Weight: 0.7, TotalStock: 15},
		}
		env := newTestEnv(t, catalog, 0)
		const workers = 50

		var wg sync.WaitGroup
		issued := atomic.NewInt32(0)
		exhausted := atomic.NewInt32(0)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := env.svc.Redeem(ctx, testRedeem(fmt.Sprintf("INV-%03d", i)))
				switch {
				case err == nil:
					issued.Inc()
				case errors.Is(err, apperrors.ErrExhausted), errors.Is(err, apperrors.ErrOutOfStock):
					exhausted.Inc()
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(20), issued.Load())
		assert.Equal(t, int32(30), exhausted.Load())

		tickets, err := env.svc.GetAllTickets(ctx)
		require.NoError(t, err)
		assert.Len(t, tickets, 20)
		assertLedgerMatchesInventory(t, env)
	})
}

func TestLuckyDrawService_Claim(t *testing.T) {
	ctx := context.Background()
	holder := model.Holder{Name: "Lan", Phone: "0901234567"}

	t.Run("Success - only once per receipt", func(t *testing.T) {
		env := newTestEnv(t, defaultCatalog(), 0)
		require.NoError(t, env.svc.MarkInvoiceUsed(ctx, "INV-001", holder))

		ticket, err := env.svc.Claim(ctx, "INV-001", holder)
		require.NoError(t, err)
		assert.Equal(t, "INV-001", ticket.ReceiptID)

		_, err = env.svc.Claim(ctx, "INV-001", holder)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyUsed)
		assertLedgerMatchesInventory(t, env)
	})

	t.Run("Failed - not reserved", func(t *testing.T) {
		env := newTestEnv(t, defaultCatalog(), 0)
		_, err := env.svc.Claim(ctx, "INV-404", holder)
		assert.ErrorIs(t, err, apperrors.ErrNoPendingRedemption)
	})

	t.Run("Success - retry after storage failure during draw", func(t *testing.T) {
		env := newTestEnvWith(t, defaultCatalog(), envOptions{drawFailures: 1})
		require.NoError(t, env.svc.MarkInvoiceUsed(ctx, "INV-001", holder))

		_, err := env.svc.Claim(ctx, "INV-001", holder)
		assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)

		// 失敗時沒有扣庫存
		tickets, err := env.svc.GetAllTickets(ctx)
		require.NoError(t, err)
		assert.Empty(t, tickets)
		assertLedgerMatchesInventory(t, env)

		ticket, err := env.svc.Claim(ctx, "INV-001", holder)
		require.NoError(t, err)
		assert.Equal(t, "INV-001", ticket.ReceiptID)

		_, err = env.svc.Claim(ctx, "INV-001", holder)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyUsed)
		assertLedgerMatchesInventory(t, env)
	})

	t.Run("Failed - exhausted draw is not retryable", func(t *testing.T) {
		env := newTestEnv(t, []model.PrizeDefinition{{ID: "x", Name: "X", Weight: 1, TotalStock: 0}}, 0)
		require.NoError(t, env.svc.MarkInvoiceUsed(ctx, "INV-001", holder))

		_, err := env.svc.Claim(ctx, "INV-001", holder)
		assert.ErrorIs(t, err, apperrors.ErrExhausted)

		_, err = env.svc.Claim(ctx, "INV-001", holder)
		assert.ErrorIs(t, err, apperrors.ErrAlreadyUsed)
	})
}

func TestLuckyDrawService_Audit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, defaultCatalog(), 0)

	_, err := env.svc.Redeem(ctx, testRedeem("INV-001"))
	require.NoError(t, err)
	assertLedgerMatchesInventory(t, env)

	// 只扣庫存沒有發券
	ok, err := env.svc.DeductPrize(ctx, "bear")
	require.NoError(t, err)
	require.True(t, ok)

	report, err := env.svc.Audit(ctx)
	require.NoError(t, err)
	assert.False(t, report.Consistent)
	for _, p := range report.Prizes {
		if p.PrizeID == "bear" {
			assert.False(t, p.Consistent)
		}
	}
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, "issued", outcomeOf(nil))
	assert.Equal(t, "already_used", outcomeOf(fmt.Errorf("wrap: %w", apperrors.ErrAlreadyUsed)))
	assert.Equal(t, "exhausted", outcomeOf(apperrors.ErrExhausted))
	assert.Equal(t, "pending", outcomeOf(apperrors.ErrTicketPending))
	assert.Equal(t, "error", outcomeOf(apperrors.ErrStorageUnavailable))
}
