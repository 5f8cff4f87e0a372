package worker

import (
	"context"
	"fmt"

	"go-gin-lucky-draw/internal/queue"
	"go-gin-lucky-draw/internal/service"
	"go-gin-lucky-draw/pkg/logger"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

type IssueWorker interface {
	// 訂閱待補發隊列，ctx 結束時停止
	Start(ctx context.Context) error
	// Start 的 goroutine 結束後關閉
	Done() <-chan struct{}
	Stats() IssueWorkerStats
}

type IssueWorkerStats struct {
	Issued  int64 `json:"issued"`
	Retried int64 `json:"retried"`
}

type IssueWorkerImpl struct {
	service service.LuckyDrawService
	queue   queue.IssueQueue
	issued  *atomic.Int64
	retried *atomic.Int64
	done    chan struct{}
}

func NewIssueWorker(service service.LuckyDrawService, queue queue.IssueQueue) IssueWorker {
	return &IssueWorkerImpl{
		service: service,
		queue:   queue,
		issued:  atomic.NewInt64(0),
		retried: atomic.NewInt64(0),
		done:    make(chan struct{}),
	}
}

func (w *IssueWorkerImpl) Start(ctx context.Context) error {
	msgs, err := w.queue.SubscribePending(ctx)
	if err != nil {
		return fmt.Errorf("subscribe pending issues: %w", err)
	}
	log := logger.WithComponent("worker")

	go func() {
		defer close(w.done)
		for msg := range msgs {
			err := w.service.IssuePending(ctx, msg.Data)
			if err != nil {
				// 庫存已扣，只能重試不能丟
				log.Warn("pending issue failed, requeue",
					zap.String("request_id", msg.Data.RequestID),
					zap.Error(err),
				)
				w.retried.Inc()
				msg.Nack(true)
				continue
			}
			w.issued.Inc()
			msg.Ack()
		}
	}()
	return nil
}

func (w *IssueWorkerImpl) Done() <-chan struct{} {
	return w.done
}

func (w *IssueWorkerImpl) Stats() IssueWorkerStats {
	return IssueWorkerStats{
		Issued:  w.issued.Load(),
		Retried: w.retried.Load(),
	}
}
