package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "go-gin-lucky-draw/pkg/app_errors"
	"go-gin-lucky-draw/pkg/logger"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// RetryPolicy 暫時性錯誤的重試上限，超過後回傳 ErrStorageUnavailable
type RetryPolicy struct {
	MaxTries        uint
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        8,
		MaxElapsed:      2 * time.Second,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxTries == 0 {
		p.MaxTries = def.MaxTries
	}
	if p.MaxElapsed <= 0 {
		p.MaxElapsed = def.MaxElapsed
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	return p
}

// permanent 標記不需重試的錯誤
func permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do 執行 op，暫時性錯誤以指數退避重試。
// backoff.Permanent 包裝的錯誤會原樣回傳；ctx 取消時回傳 ctx 的錯誤，此時寫入可能已生效。
func (p RetryPolicy) Do(ctx context.Context, operation string, op func() error) error {
	p = p.withDefaults()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval

	var permanentErr error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			permanentErr = perm.Err
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(p.MaxTries),
		backoff.WithMaxElapsedTime(p.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.WithComponent("storage").Debug("retrying storage operation",
				zap.String("operation", operation),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return nil
	}
	if permanentErr != nil {
		return permanentErr
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %w", apperrors.ErrStorageUnavailable, operation, err)
}
