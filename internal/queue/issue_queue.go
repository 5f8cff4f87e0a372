package queue

import (
	"context"
	"sync"

	"go-gin-lucky-draw/internal/model"
	"go-gin-lucky-draw/pkg/logger"

	"go.uber.org/zap"
)

type Delivery struct {
	Data *model.PendingIssue
	Ack  func()
	Nack func(requeue bool)
}

type IssueQueue interface {
	// 發送待補發的票券
	PublishPending(ctx context.Context, pending *model.PendingIssue) error
	// 訂閱待補發隊列
	SubscribePending(ctx context.Context) (<-chan Delivery, error)
	// 尚未處理完的數量
	Depth(ctx context.Context) (int64, error)
}

type IssueQueueImpl struct {
	// 使用 Go channel 模擬 MQ 隊列，只在單一程序內有效
	ch chan *model.PendingIssue

	// channel 滿時 Nack 回來的訊息，庫存已扣，不能丟掉
	mu       sync.Mutex
	overflow []*model.PendingIssue
}

func NewIssueQueue(bufferSize int) IssueQueue {
	return &IssueQueueImpl{
		ch: make(chan *model.PendingIssue, bufferSize),
	}
}

func (q *IssueQueueImpl) PublishPending(ctx context.Context, pending *model.PendingIssue) error {
	select {
	case q.ch <- pending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *IssueQueueImpl) Depth(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ch) + len(q.overflow)), nil
}

func (q *IssueQueueImpl) requeue(pending *model.PendingIssue) {
	select {
	case q.ch <- pending:
		return
	default:
	}

	q.mu.Lock()
	q.overflow = append(q.overflow, pending)
	size := len(q.overflow)
	q.mu.Unlock()

	logger.WithComponent("queue").Warn("issue queue full, nacked pending issue kept in overflow",
		zap.String("request_id", pending.RequestID),
		zap.Int("overflow", size),
	)
}

// popOverflow overflow 只在 channel 滿時才有資料，迴圈每輪先取它
func (q *IssueQueueImpl) popOverflow() *model.PendingIssue {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.overflow) == 0 {
		return nil
	}
	pending := q.overflow[0]
	q.overflow = q.overflow[1:]
	return pending
}

func (q *IssueQueueImpl) SubscribePending(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	go func() {
		defer close(out)
		for {
			pending := q.popOverflow()
			if pending == nil {
				select {
				case <-ctx.Done():
					return
				case p, ok := <-q.ch:
					if !ok {
						return
					}
					pending = p
				}
			}

			d := Delivery{
				Data: pending,
				Ack:  func() { /* 記憶體版不用做特別動作 */ },
				Nack: func(requeue bool) {
					if requeue {
						q.requeue(pending)
					}
				},
			}
			select {
			case out <- d:
			case <-ctx.Done():
				// 已取出但沒送出的放回去
				q.requeue(pending)
				return
			}
		}
	}()

	return out, nil
}
