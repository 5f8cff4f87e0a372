package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go-gin-lucky-draw/internal/locale"
	"go-gin-lucky-draw/internal/model"
	apperrors "go-gin-lucky-draw/pkg/app_errors"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
)

const defaultTimeout = 10 * time.Second

// ErrUnreachable 連不到伺服器或逾時
var ErrUnreachable = errors.New("lucky draw server unreachable")

// APIError 服務端回傳的錯誤，errors.Is 可對應回 apperrors
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

var sentinels = map[string]error{
	locale.MsgInvalidRequest:      apperrors.ErrInvalidInput,
	locale.MsgAlreadyUsed:         apperrors.ErrAlreadyUsed,
	locale.MsgOutOfStock:          apperrors.ErrOutOfStock,
	locale.MsgExhausted:           apperrors.ErrExhausted,
	locale.MsgCodeCollision:       apperrors.ErrCodeCollision,
	locale.MsgPrizeNotFound:       apperrors.ErrPrizeNotFound,
	locale.MsgTicketNotFound:      apperrors.ErrTicketNotFound,
	locale.MsgNoPendingRedemption: apperrors.ErrNoPendingRedemption,
	locale.MsgTicketPending:       apperrors.ErrTicketPending,
	locale.MsgStorageUnavailable:  apperrors.ErrStorageUnavailable,
	locale.MsgInternalServerError: apperrors.ErrInternalServerError,
}

func (e *APIError) Unwrap() error {
	return sentinels[e.Code]
}

type Client struct {
	http *resty.Client
}

type Option func(*resty.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

func WithLanguage(lang string) Option {
	return func(c *resty.Client) { c.SetHeader("Accept-Language", lang) }
}

func WithRetry(count int) Option {
	return func(c *resty.Client) {
		c.SetRetryCount(count).
			SetRetryWaitTime(100 * time.Millisecond).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				return err != nil || r.StatusCode() == http.StatusServiceUnavailable
			})
	}
}

func New(baseURL string, opts ...Option) *Client {
	rc := resty.New().
		SetHostURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")
	rc.JSONMarshal = json.Marshal
	rc.JSONUnmarshal = json.Unmarshal

	for _, opt := range opts {
		opt(rc)
	}
	return &Client{http: rc}
}

func (c *Client) Status(ctx context.Context) (*model.ServiceStatus, error) {
	var out model.ServiceStatus
	if err := c.get(ctx, "/api/v1/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Inventory(ctx context.Context) (model.Inventory, error) {
	var out model.Inventory
	if err := c.get(ctx, "/api/v1/inventory", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Audit(ctx context.Context) (*model.AuditReport, error) {
	var out model.AuditReport
	if err := c.get(ctx, "/api/v1/audit", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Tickets(ctx context.Context, prizeID string) ([]*model.Ticket, error) {
	var out []*model.Ticket
	req := c.http.R().SetContext(ctx).SetResult(&out)
	if prizeID != "" {
		req.SetQueryParam("prizeId", prizeID)
	}
	resp, err := req.Get("/api/v1/tickets")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Ticket(ctx context.Context, code string) (*model.Ticket, error) {
	var out model.Ticket
	if err := c.get(ctx, "/api/v1/tickets/"+code, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Redeem 伺服器回 202 時回傳 ErrTicketPending
func (c *Client) Redeem(ctx context.Context, req model.RedeemRequest) (*model.Ticket, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post("/api/v1/redeem")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	if resp.StatusCode() == http.StatusAccepted {
		return nil, decodeError(resp)
	}

	var ticket model.Ticket
	if err := json.Unmarshal(resp.Body(), &ticket); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	return &ticket, nil
}

func (c *Client) DeductPrize(ctx context.Context, prizeID string) (bool, error) {
	var out model.DeductResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Post("/api/v1/inventory/" + prizeID + "/deduct")
	if err := check(resp, err); err != nil {
		return false, err
	}
	return out.Deducted, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	resp, err := c.http.R().SetContext(ctx).SetResult(out).Get(path)
	return check(resp, err)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if resp.IsError() {
		return decodeError(resp)
	}
	return nil
}

func decodeError(resp *resty.Response) error {
	apiErr := &APIError{Status: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = locale.MsgInternalServerError
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	return apiErr
}

// IsRetryable 伺服器暫時無法處理
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, apperrors.ErrStorageUnavailable)
}
