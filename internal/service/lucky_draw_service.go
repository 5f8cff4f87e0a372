package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-gin-lucky-draw/internal/draw"
	"go-gin-lucky-draw/internal/model"
	"go-gin-lucky-draw/internal/queue"
	"go-gin-lucky-draw/internal/repository"
	"go-gin-lucky-draw/internal/storage"
	apperrors "go-gin-lucky-draw/pkg/app_errors"
	"go-gin-lucky-draw/pkg/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	instrumentationName = "go-gin-lucky-draw/internal/service"

	publishTimeout = 2 * time.Second
)

type LuckyDrawService interface {
	// 連線並初始化庫存，回傳是否為遠端共享儲存
	Init(ctx context.Context) (bool, error)
	IsInvoiceUsed(ctx context.Context, receiptID string) (bool, error)
	// 原子登記發票，重複回傳 ErrAlreadyUsed
	MarkInvoiceUsed(ctx context.Context, receiptID string, holder model.Holder) error
	GetPrizeInventory(ctx context.Context) (model.Inventory, error)
	// 扣一份庫存，沒庫存回傳 false
	DeductPrize(ctx context.Context, prizeID string) (bool, error)
	// 寫入票券並回傳號碼
	SaveTicket(ctx context.Context, draft model.TicketDraft) (string, error)
	GetAllTickets(ctx context.Context) ([]*model.Ticket, error)

	// 登記、抽獎、發券一次完成
	Redeem(ctx context.Context, req model.RedeemRequest) (*model.Ticket, error)
	// 已登記的發票抽獎並發券，每張發票只能成功一次
	Claim(ctx context.Context, receiptID string, holder model.Holder) (*model.Ticket, error)
	FindTicket(ctx context.Context, code string) (*model.Ticket, error)
	FindTicketByReceipt(ctx context.Context, receiptID string) (*model.Ticket, error)
	// 補發已扣庫存的票券，由 worker 呼叫
	IssuePending(ctx context.Context, pending *model.PendingIssue) error

	Catalog() []model.PrizeDefinition
	Status(ctx context.Context) (*model.ServiceStatus, error)
	Audit(ctx context.Context) (*model.AuditReport, error)
}

type LuckyDrawServiceImpl struct {
	store     storage.Store
	receipts  repository.ReceiptRepository
	inventory repository.InventoryRepository
	tickets   repository.TicketRepository
	allocator *draw.Allocator
	pending   queue.IssueQueue
	tracer    trace.Tracer
	metrics   *serviceMetrics
	now       func() time.Time
}

func NewLuckyDrawService(
	store storage.Store,
	receipts repository.ReceiptRepository,
	inventory repository.InventoryRepository,
	tickets repository.TicketRepository,
	allocator *draw.Allocator,
	pending queue.IssueQueue,
) LuckyDrawService {
	return &LuckyDrawServiceImpl{
		store:     store,
		receipts:  receipts,
		inventory: inventory,
		tickets:   tickets,
		allocator: allocator,
		pending:   pending,
		tracer:    otel.Tracer(instrumentationName),
		metrics:   newServiceMetrics(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *LuckyDrawServiceImpl) Init(ctx context.Context) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "luckydraw.Init")
	defer span.End()

	if err := s.store.Ping(ctx); err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("%w: %w", apperrors.ErrStorageUnavailable, err)
	}
	// 第一次啟動時寫入預設庫存
	if _, err := s.inventory.Snapshot(ctx); err != nil {
		span.RecordError(err)
		return false, err
	}

	durable := s.store.Durable()
	if !durable {
		logger.WithComponent("service").Warn("running in degraded local mode, redemptions are only unique within this process")
	}
	return durable, nil
}

func (s *LuckyDrawServiceImpl) IsInvoiceUsed(ctx context.Context, receiptID string) (bool, error) {
	return s.receipts.IsUsed(ctx, receiptID)
}

func (s *LuckyDrawServiceImpl) MarkInvoiceUsed(ctx context.Context, receiptID string, holder model.Holder) error {
	ctx, span := s.tracer.Start(ctx, "luckydraw.MarkInvoiceUsed", trace.WithAttributes(
		attribute.String("receipt_id", receiptID),
	))
	defer span.End()

	_, err := s.receipts.Reserve(ctx, receiptID, holder)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *LuckyDrawServiceImpl) GetPrizeInventory(ctx context.Context) (model.Inventory, error) {
	return s.inventory.Snapshot(ctx)
}

func (s *LuckyDrawServiceImpl) DeductPrize(ctx context.Context, prizeID string) (bool, error) {
	err := s.inventory.TryDecrement(ctx, prizeID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperrors.ErrOutOfStock):
		return false, nil
	default:
		return false, err
	}
}

func (s *LuckyDrawServiceImpl) SaveTicket(ctx context.Context, draft model.TicketDraft) (string, error) {
	ticket, err := s.tickets.Issue(ctx, draft)
	if err != nil {
		return "", err
	}
	return ticket.Code, nil
}

func (s *LuckyDrawServiceImpl) GetAllTickets(ctx context.Context) ([]*model.Ticket, error) {
	return s.tickets.List(ctx)
}

func (s *LuckyDrawServiceImpl) Redeem(ctx context.Context, req model.RedeemRequest) (*model.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "luckydraw.Redeem", trace.WithAttributes(
		attribute.String("receipt_id", req.ReceiptID),
	))
	defer span.End()

	// 1. 登記發票；同一位參加者在抽獎前失敗後重送，可以接著抽
	if _, err := s.receipts.Reserve(ctx, req.ReceiptID, req.Holder); err != nil {
		if !errors.Is(err, apperrors.ErrAlreadyUsed) {
			s.finish(ctx, span, nil, err)
			return nil, err
		}
		if resumeErr := s.receipts.Resume(ctx, req.ReceiptID, req.Holder); resumeErr != nil {
			if !errors.Is(resumeErr, apperrors.ErrAlreadyUsed) && !errors.Is(resumeErr, apperrors.ErrNoPendingRedemption) {
				err = resumeErr
			}
			s.finish(ctx, span, nil, err)
			return nil, err
		}
		span.SetAttributes(attribute.Bool("resumed", true))
	}

	// 2. 抽獎並發券
	ticket, err := s.claim(ctx, req.ReceiptID, req.Holder)
	s.finish(ctx, span, ticket, err)
	return ticket, err
}

func (s *LuckyDrawServiceImpl) Claim(ctx context.Context, receiptID string, holder model.Holder) (*model.Ticket, error) {
	ctx, span := s.tracer.Start(ctx, "luckydraw.Claim", trace.WithAttributes(
		attribute.String("receipt_id", receiptID),
	))
	defer span.End()

	ticket, err := s.claim(ctx, receiptID, holder)
	s.finish(ctx, span, ticket, err)
	return ticket, err
}

/*
claim

 1. 使用抽獎資格（原子 test-and-set，重送的請求不會抽第二次）
 2. 抽獎並扣庫存；暫時性錯誤時歸還資格，讓呼叫端可以重試
 3. 發券；失敗時庫存已扣，丟到待補發隊列由 worker 完成，回傳 ErrTicketPending
*/
func (s *LuckyDrawServiceImpl) claim(ctx context.Context, receiptID string, holder model.Holder) (*model.Ticket, error) {
	id, err := repository.NormalizeReceiptID(receiptID)
	if err != nil {
		return nil, err
	}

	claimID, err := s.receipts.ConsumeEntitlement(ctx, id)
	if err != nil {
		return nil, err
	}

	prize, err := s.allocator.Draw(ctx)
	if err != nil {
		if !drawConsumesEntitlement(err) {
			s.releaseEntitlement(ctx, id, claimID, err)
		}
		return nil, err
	}

	draft := model.NewTicketDraft(id, holder, *prize)
	ticket, err := s.tickets.Issue(ctx, draft)
	if err == nil {
		return ticket, nil
	}
	if errors.Is(err, apperrors.ErrInvalidInput) {
		return nil, err
	}
	return nil, s.deferIssue(ctx, draft, err)
}

// drawConsumesEntitlement 沒有獎品可抽，或已扣了庫存，資格不歸還
func drawConsumesEntitlement(err error) bool {
	return errors.Is(err, apperrors.ErrExhausted) ||
		errors.Is(err, apperrors.ErrOutOfStock) ||
		errors.Is(err, apperrors.ErrPrizeNotFound)
}

func (s *LuckyDrawServiceImpl) releaseEntitlement(ctx context.Context, receiptID, claimID string, cause error) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	log := logger.WithComponent("service").With(
		zap.String("receipt_id", receiptID),
		zap.NamedError("cause", cause),
	)
	if err := s.receipts.ReleaseEntitlement(relCtx, receiptID, claimID); err != nil {
		log.Error("failed to release draw entitlement, receipt cannot be retried", zap.Error(err))
		return
	}
	log.Warn("draw failed, entitlement released for retry")
}

func (s *LuckyDrawServiceImpl) deferIssue(ctx context.Context, draft model.TicketDraft, cause error) error {
	log := logger.WithComponent("service").With(
		zap.String("receipt_id", draft.ReceiptID),
		zap.String("prize_id", draft.PrizeID),
		zap.NamedError("cause", cause),
	)

	pending := &model.PendingIssue{
		RequestID: uuid.New().String(),
		Draft:     draft,
		QueuedAt:  s.now(),
	}

	// 請求可能已被取消，補發仍要送出
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.pending.PublishPending(pubCtx, pending); err != nil {
		log.Error("failed to queue pending ticket, prize reserved without ticket", zap.Error(err))
		return fmt.Errorf("issue ticket: %w", cause)
	}

	log.Warn("ticket issuance deferred", zap.String("request_id", pending.RequestID))
	s.metrics.pendingQueued.Add(ctx, 1)
	return fmt.Errorf("%w: request %s: %v", apperrors.ErrTicketPending, pending.RequestID, cause)
}

func (s *LuckyDrawServiceImpl) IssuePending(ctx context.Context, pending *model.PendingIssue) error {
	ctx, span := s.tracer.Start(ctx, "luckydraw.IssuePending", trace.WithAttributes(
		attribute.String("request_id", pending.RequestID),
		attribute.String("receipt_id", pending.Draft.ReceiptID),
	))
	defer span.End()

	ticket, err := s.tickets.Issue(ctx, pending.Draft)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.String("ticket_code", ticket.Code))
	logger.WithComponent("service").Info("pending ticket issued",
		zap.String("request_id", pending.RequestID),
		zap.String("code", ticket.Code),
	)
	return nil
}

func (s *LuckyDrawServiceImpl) FindTicket(ctx context.Context, code string) (*model.Ticket, error) {
	return s.tickets.FindByCode(ctx, code)
}

func (s *LuckyDrawServiceImpl) FindTicketByReceipt(ctx context.Context, receiptID string) (*model.Ticket, error) {
	return s.tickets.FindByReceipt(ctx, receiptID)
}

func (s *LuckyDrawServiceImpl) Catalog() []model.PrizeDefinition {
	return s.inventory.Catalog()
}

func (s *LuckyDrawServiceImpl) Status(ctx context.Context) (*model.ServiceStatus, error) {
	depth, err := s.pending.Depth(ctx)
	if err != nil {
		return nil, err
	}
	return &model.ServiceStatus{
		Durable:       s.store.Durable(),
		PendingIssues: depth,
	}, nil
}

func (s *LuckyDrawServiceImpl) Audit(ctx context.Context) (*model.AuditReport, error) {
	snapshot, err := s.inventory.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.tickets.CountByPrize(ctx)
	if err != nil {
		return nil, err
	}
	depth, err := s.pending.Depth(ctx)
	if err != nil {
		return nil, err
	}

	report := &model.AuditReport{
		CheckedAt:     s.now(),
		PendingIssues: depth,
		Consistent:    true,
	}
	for _, id := range snapshot.IDs() {
		rec := snapshot[id]
		audit := model.PrizeAudit{
			PrizeID:    id,
			Name:       rec.Name,
			Total:      rec.Total,
			Remaining:  rec.Remaining,
			Issued:     counts[id],
			Consistent: rec.Issued() == counts[id],
		}
		if !audit.Consistent {
			report.Consistent = false
		}
		report.Prizes = append(report.Prizes, audit)
	}
	return report, nil
}

// finish 記錄 span 與 metrics
func (s *LuckyDrawServiceImpl) finish(ctx context.Context, span trace.Span, ticket *model.Ticket, err error) {
	outcome := outcomeOf(err)
	span.SetAttributes(attribute.String("outcome", outcome))
	s.metrics.redemptions.Add(ctx, 1, metricAttrs(attribute.String("outcome", outcome)))

	if err != nil {
		span.RecordError(err)
		if outcome == "error" {
			span.SetStatus(codes.Error, err.Error())
		}
		return
	}

	span.SetAttributes(
		attribute.String("ticket_code", ticket.Code),
		attribute.String("prize_id", ticket.PrizeID),
	)
	s.metrics.prizesAwarded.Add(ctx, 1, metricAttrs(attribute.String("prize_id", ticket.PrizeID)))
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "issued"
	case errors.Is(err, apperrors.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, apperrors.ErrExhausted):
		return "exhausted"
	case errors.Is(err, apperrors.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, apperrors.ErrTicketPending):
		return "pending"
	case errors.Is(err, apperrors.ErrNoPendingRedemption):
		return "not_reserved"
	case errors.Is(err, apperrors.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}
