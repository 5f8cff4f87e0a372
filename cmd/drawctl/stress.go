package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go-gin-lucky-draw/internal/client"
	"go-gin-lucky-draw/internal/model"
	apperrors "go-gin-lucky-draw/pkg/app_errors"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/atomic"
)

type stressResult struct {
	issued      atomic.Int64
	pending     atomic.Int64
	alreadyUsed atomic.Int64
	exhausted   atomic.Int64
	failed      atomic.Int64
}

func (r *stressResult) record(err error) {
	switch {
	case err == nil:
		r.issued.Inc()
	case errors.Is(err, apperrors.ErrTicketPending):
		r.pending.Inc()
	case errors.Is(err, apperrors.ErrAlreadyUsed):
		r.alreadyUsed.Inc()
	case errors.Is(err, apperrors.ErrExhausted), errors.Is(err, apperrors.ErrOutOfStock):
		r.exhausted.Inc()
	default:
		r.failed.Inc()
	}
}

// runStress 同時送出大量兌獎請求；--duplicates 讓每張發票重送多次，檢查只成功一次
func runStress(ctx context.Context, c *client.Client, args []string, out io.Writer) error {
	var count, concurrency, duplicates int
	fs := pflag.NewFlagSet("stress", pflag.ContinueOnError)
	fs.IntVarP(&count, "count", "n", 100, "distinct receipts to redeem")
	fs.IntVarP(&concurrency, "concurrency", "c", 16, "concurrent requests")
	fs.IntVar(&duplicates, "duplicates", 1, "times each receipt is submitted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if count <= 0 || concurrency <= 0 || duplicates <= 0 {
		return errors.New("--count, --concurrency and --duplicates must be positive")
	}

	runID := uuid.New().String()[:8]
	jobs := make(chan string)
	go func() {
		defer close(jobs)
		for i := 0; i < count; i++ {
			id := fmt.Sprintf("STRESS-%s-%05d", runID, i)
			for d := 0; d < duplicates; d++ {
				select {
				case jobs <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	var result stressResult
	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				_, err := c.Redeem(ctx, model.RedeemRequest{
					ReceiptID: id,
					Holder:    model.Holder{Name: "stress", Phone: "0000000000"},
				})
				result.record(err)
			}
		}()
	}
	wg.Wait()

	fmt.Fprintf(out, "requests:     %d in %s\n", count*duplicates, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(out, "issued:       %d\n", result.issued.Load())
	fmt.Fprintf(out, "pending:      %d\n", result.pending.Load())
	fmt.Fprintf(out, "already used: %d\n", result.alreadyUsed.Load())
	fmt.Fprintf(out, "exhausted:    %d\n", result.exhausted.Load())
	fmt.Fprintf(out, "failed:       %d\n", result.failed.Load())

	if won := result.issued.Load() + result.pending.Load(); won > int64(count) {
		return fmt.Errorf("%d receipts won %d prizes", count, won)
	}
	return nil
}
