package handler

import (
	"encoding/csv"
	"errors"
	"net/http"
	"time"

	"go-gin-lucky-draw/internal/locale"
	"go-gin-lucky-draw/internal/model"
	"go-gin-lucky-draw/internal/service"
	apperrors "go-gin-lucky-draw/pkg/app_errors"
	"go-gin-lucky-draw/pkg/logger"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	sessionReceiptKey = "receipt_id"
	sessionHolderKey  = "holder"

	qrCodeSize = 256
)

type receiptURI struct {
	ID string `uri:"id" binding:"required"`
}

type ticketURI struct {
	Code string `uri:"code" binding:"required"`
}

type prizeURI struct {
	PrizeID string `uri:"prizeId" binding:"required"`
}

type ticketQuery struct {
	PrizeID string `form:"prizeId"`
}

type receiptStatus struct {
	ID   string `json:"id"`
	Used bool   `json:"used"`
}

type LuckyDrawHandler struct {
	service    service.LuckyDrawService
	translator *locale.Translator
}

func NewLuckyDrawHandler(service service.LuckyDrawService, translator *locale.Translator) *LuckyDrawHandler {
	return &LuckyDrawHandler{service: service, translator: translator}
}

func (h *LuckyDrawHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ping", h.Ping)

	router := r.Group("/api/v1")
	{
		router.GET("status", h.GetStatus)
		router.GET("catalog", h.GetCatalog)
		router.GET("audit", h.GetAudit)

		router.GET("receipts/:id", h.GetReceipt)
		router.PUT("receipts/:id", h.MarkReceiptUsed)
		router.GET("receipts/:id/ticket", h.GetReceiptTicket)

		router.GET("inventory", h.GetInventory)
		router.POST("inventory/:prizeId/deduct", h.DeductPrize)

		router.POST("redemptions", h.StartRedemption)
		router.POST("redemptions/draw", h.DrawRedemption)
		router.POST("redeem", h.Redeem)

		router.GET("tickets", h.GetTickets)
		router.GET("tickets.csv", h.ExportTicketsCSV)
		router.POST("tickets", h.CreateTicket)
		router.GET("tickets/:code", h.GetTicket)
		router.GET("tickets/:code/qr.png", h.GetTicketQRCode)
	}
}

func (h *LuckyDrawHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

func (h *LuckyDrawHandler) GetStatus(c *gin.Context) {
	status, err := h.service.Status(c)
	if err != nil {
		h.handleError(c, err, "GetStatus")
		return
	}
	h.handleSuccess(c, status, http.StatusOK)
}

func (h *LuckyDrawHandler) GetCatalog(c *gin.Context) {
	h.handleSuccess(c, h.service.Catalog(), http.StatusOK)
}

func (h *LuckyDrawHandler) GetAudit(c *gin.Context) {
	report, err := h.service.Audit(c)
	if err != nil {
		h.handleError(c, err, "GetAudit")
		return
	}
	h.handleSuccess(c, report, http.StatusOK)
}

func (h *LuckyDrawHandler) GetReceipt(c *gin.Context) {
	var uri receiptURI
	if err := BindUri(c, h.translator, &uri); err != nil {
		return
	}

	used, err := h.service.IsInvoiceUsed(c, uri.ID)
	if err != nil {
		h.handleError(c, err, "GetReceipt")
		return
	}
	h.handleSuccess(c, receiptStatus{ID: uri.ID, Used: used}, http.StatusOK)
}

func (h *LuckyDrawHandler) MarkReceiptUsed(c *gin.Context) {
	var uri receiptURI
	if err := BindUri(c, h.translator, &uri); err != nil {
		return
	}
	var holder model.Holder
	if err := BindJson(c, h.translator, &holder); err != nil {
		return
	}

	if err := h.service.MarkInvoiceUsed(c, uri.ID, holder); err != nil {
		h.handleError(c, err, "MarkReceiptUsed")
		return
	}
	h.handleSuccess(c, model.RedemptionResponse{ReceiptID: uri.ID, Reserved: true}, http.StatusCreated)
}

func (h *LuckyDrawHandler) GetReceiptTicket(c *gin.Context) {
	var uri receiptURI
	if err := BindUri(c, h.translator, &uri); err != nil {
		return
	}

	ticket, err := h.service.FindTicketByReceipt(c, uri.ID)
	if err != nil {
		h.handleError(c, err, "GetReceiptTicket")
		return
	}
	h.handleSuccess(c, ticket, http.StatusOK)
}

func (h *LuckyDrawHandler) GetInventory(c *gin.Context) {
	inv, err := h.service.GetPrizeInventory(c)
	if err != nil {
		h.handleError(c, err, "GetInventory")
		return
	}
	h.handleSuccess(c, inv, http.StatusOK)
}

func (h *LuckyDrawHandler) DeductPrize(c *gin.Context) {
	var uri prizeURI
	if err := BindUri(c, h.translator, &uri); err != nil {
		return
	}

	ok, err := h.service.DeductPrize(c, uri.PrizeID)
	if err != nil {
		h.handleError(c, err, "DeductPrize")
		return
	}
	h.handleSuccess(c, model.DeductResponse{PrizeID: uri.PrizeID, Deducted: ok}, http.StatusOK)
}

// StartRedemption 兩段式流程第一步：登記發票，抽獎資格記在 session
func (h *LuckyDrawHandler) StartRedemption(c *gin.Context) {
	var req model.RedeemRequest
	if err := BindJson(c, h.translator, &req); err != nil {
		return
	}

	if err := h.service.MarkInvoiceUsed(c, req.ReceiptID, req.Holder); err != nil {
		h.handleError(c, err, "StartRedemption")
		return
	}

	holder, err := json.Marshal(req.Holder)
	if err != nil {
		h.handleError(c, err, "StartRedemption")
		return
	}
	session := sessions.Default(c)
	session.Set(sessionReceiptKey, req.ReceiptID)
	session.Set(sessionHolderKey, string(holder))
	if err := session.Save(); err != nil {
		h.handleError(c, err, "StartRedemption")
		return
	}

	h.handleSuccess(c, model.RedemptionResponse{ReceiptID: req.ReceiptID, Reserved: true}, http.StatusCreated)
}

// DrawRedemption 兩段式流程第二步：以 session 中的發票抽獎
func (h *LuckyDrawHandler) DrawRedemption(c *gin.Context) {
	session := sessions.Default(c)
	receiptID, _ := session.Get(sessionReceiptKey).(string)
	rawHolder, _ := session.Get(sessionHolderKey).(string)
	if receiptID == "" {
		h.handleError(c, apperrors.ErrNoPendingRedemption, "DrawRedemption")
		return
	}

	var holder model.Holder
	if rawHolder != "" {
		if err := json.Unmarshal([]byte(rawHolder), &holder); err != nil {
			logger.WithComponent("handler").Warn("discarding malformed session holder", zap.Error(err))
		}
	}

	ticket, err := h.service.Claim(c, receiptID, holder)
	if !isRetryable(err) {
		session.Delete(sessionReceiptKey)
		session.Delete(sessionHolderKey)
		if serr := session.Save(); serr != nil {
			logger.WithComponent("handler").Warn("failed to clear session", zap.Error(serr))
		}
	}
	if err != nil {
		h.handleError(c, err, "DrawRedemption")
		return
	}
	h.handleSuccess(c, ticket, http.StatusCreated)
}

func (h *LuckyDrawHandler) Redeem(c *gin.Context) {
	var req model.RedeemRequest
	if err := BindJson(c, h.translator, &req); err != nil {
		return
	}

	ticket, err := h.service.Redeem(c, req)
	if err != nil {
		h.handleError(c, err, "Redeem")
		return
	}
	h.handleSuccess(c, ticket, http.StatusCreated)
}

func (h *LuckyDrawHandler) GetTickets(c *gin.Context) {
	var query ticketQuery
	if err := BindQuery(c, h.translator, &query); err != nil {
		return
	}

	tickets, err := h.service.GetAllTickets(c)
	if err != nil {
		h.handleError(c, err, "GetTickets")
		return
	}
	if query.PrizeID != "" {
		filtered := make([]*model.Ticket, 0, len(tickets))
		for _, t := range tickets {
			if t.PrizeID == query.PrizeID {
				filtered = append(filtered, t)
			}
		}
		tickets = filtered
	}
	h.handleSuccess(c, tickets, http.StatusOK)
}

func (h *LuckyDrawHandler) ExportTicketsCSV(c *gin.Context) {
	tickets, err := h.service.GetAllTickets(c)
	if err != nil {
		h.handleError(c, err, "ExportTicketsCSV")
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", "attachment;filename=tickets.csv")
	c.Status(http.StatusOK)

	// BOM 讓 Excel 以 UTF-8 開啟
	_, _ = c.Writer.Write([]byte("\xef\xbb\xbf"))

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"code", "prize_id", "prize_name", "name", "phone", "store", "product", "invoice", "created_at"})
	for _, t := range tickets {
		_ = w.Write([]string{
			t.Code, t.PrizeID, t.PrizeName, t.HolderName, t.HolderPhone,
			t.Store, t.Product, t.ReceiptID, t.IssuedAt.Format(time.RFC3339),
		})
	}
	w.Flush()

	if err := w.Error(); err != nil {
		logger.WithComponent("handler").Error("failed to write tickets csv", zap.Error(err))
	}
}

func (h *LuckyDrawHandler) CreateTicket(c *gin.Context) {
	var draft model.TicketDraft
	if err := BindJson(c, h.translator, &draft); err != nil {
		return
	}

	code, err := h.service.SaveTicket(c, draft)
	if err != nil {
		h.handleError(c, err, "CreateTicket")
		return
	}
	h.handleSuccess(c, gin.H{"code": code}, http.StatusCreated)
}

func (h *LuckyDrawHandler) GetTicket(c *gin.Context) {
	var uri ticketURI
	if err := BindUri(c, h.translator, &uri); err != nil {
		return
	}

	ticket, err := h.service.FindTicket(c, uri.Code)
	if err != nil {
		h.handleError(c, err, "GetTicket")
		return
	}
	h.handleSuccess(c, ticket, http.StatusOK)
}

// GetTicketQRCode 兌獎時掃描用
func (h *LuckyDrawHandler) GetTicketQRCode(c *gin.Context) {
	var uri ticketURI
	if err := BindUri(c, h.translator, &uri); err != nil {
		return
	}

	ticket, err := h.service.FindTicket(c, uri.Code)
	if err != nil {
		h.handleError(c, err, "GetTicketQRCode")
		return
	}

	png, err := qrcode.Encode(ticket.Code, qrcode.Medium, qrCodeSize)
	if err != nil {
		h.handleError(c, err, "GetTicketQRCode")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Helper functions

// isRetryable 儲存層暫時失敗時保留 session 讓使用者重試
func isRetryable(err error) bool {
	return errors.Is(err, apperrors.ErrStorageUnavailable) && !errors.Is(err, apperrors.ErrTicketPending)
}

func (h *LuckyDrawHandler) handleError(c *gin.Context, err error, operation string) {
	log := logger.WithComponent("handler").With(zap.String("operation", operation), zap.Error(err))
	messageID := locale.MessageID(err)

	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		log.Warn("Invalid input")
		respondMessage(c, h.translator, http.StatusBadRequest, messageID)
	case errors.Is(err, apperrors.ErrAlreadyUsed):
		log.Warn("Receipt already used")
		respondMessage(c, h.translator, http.StatusConflict, messageID)
	case errors.Is(err, apperrors.ErrOutOfStock):
		log.Warn("Prize out of stock")
		respondMessage(c, h.translator, http.StatusConflict, messageID)
	case errors.Is(err, apperrors.ErrExhausted):
		log.Warn("All prizes exhausted")
		respondMessage(c, h.translator, http.StatusGone, messageID)
	case errors.Is(err, apperrors.ErrPrizeNotFound), errors.Is(err, apperrors.ErrTicketNotFound):
		log.Warn("Not found")
		respondMessage(c, h.translator, http.StatusNotFound, messageID)
	case errors.Is(err, apperrors.ErrNoPendingRedemption):
		log.Warn("No pending redemption")
		respondMessage(c, h.translator, http.StatusBadRequest, messageID)
	case errors.Is(err, apperrors.ErrTicketPending):
		log.Warn("Ticket issuance deferred")
		respondMessage(c, h.translator, http.StatusAccepted, messageID)
	case errors.Is(err, apperrors.ErrStorageUnavailable), errors.Is(err, apperrors.ErrCodeCollision):
		log.Error("Storage unavailable")
		respondMessage(c, h.translator, http.StatusServiceUnavailable, messageID)
	default:
		log.Error("Unexpected error")
		respondMessage(c, h.translator, http.StatusInternalServerError, messageID)
	}
}

func (h *LuckyDrawHandler) handleSuccess(c *gin.Context, data interface{}, statusCode int) {
	if data != nil {
		c.JSON(statusCode, data)
	} else {
		c.Status(statusCode)
	}
}
