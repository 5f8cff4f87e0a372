package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go-gin-lucky-draw/internal/model"
	"go-gin-lucky-draw/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	StreamKey          = "tickets:pending"
	ConsumerGroupName  = "ticket-issuers"
	ConsumerNamePrefix = "issuer"

	pendingField = "pending"
	batchSize    = 10
)

// RedisStreamIssueQueueConfig nil 或零值欄位使用預設
type RedisStreamIssueQueueConfig struct {
	ClaimMinIdleTime   time.Duration // PEL 中閒置超過此時間才被 XAUTOCLAIM 領回重試
	MaxDeliveries      int           // 投遞超過此次數就丟棄並記錄
	ReadGroupBlockTime time.Duration
}

func (c *RedisStreamIssueQueueConfig) withDefaults() RedisStreamIssueQueueConfig {
	cfg := RedisStreamIssueQueueConfig{
		ClaimMinIdleTime:   5 * time.Second,
		MaxDeliveries:      5,
		ReadGroupBlockTime: 2 * time.Second,
	}
	if c == nil {
		return cfg
	}
	if c.ClaimMinIdleTime > 0 {
		cfg.ClaimMinIdleTime = c.ClaimMinIdleTime
	}
	if c.MaxDeliveries > 0 {
		cfg.MaxDeliveries = c.MaxDeliveries
	}
	if c.ReadGroupBlockTime > 0 {
		cfg.ReadGroupBlockTime = c.ReadGroupBlockTime
	}
	return cfg
}

// RedisStreamIssueQueueImpl 多個實例共用 consumer group，任一實例都能補發
type RedisStreamIssueQueueImpl struct {
	client   *redis.Client
	consumer string
	cfg      RedisStreamIssueQueueConfig
	log      *zap.Logger
}

func NewRedisStreamIssueQueue(ctx context.Context, client *redis.Client, consumerID string, config *RedisStreamIssueQueueConfig) (IssueQueue, error) {
	if consumerID == "" {
		consumerID = uuid.New().String()
	}
	q := &RedisStreamIssueQueueImpl{
		client:   client,
		consumer: fmt.Sprintf("%s:%s", ConsumerNamePrefix, consumerID),
		cfg:      config.withDefaults(),
	}
	q.log = logger.WithComponent("mq").With(zap.String("stream", StreamKey), zap.String("consumer", q.consumer))

	err := client.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("ensure consumer group: %w", err)
	}
	return q, nil
}

func (q *RedisStreamIssueQueueImpl) PublishPending(ctx context.Context, pending *model.PendingIssue) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("marshal pending issue: %w", err)
	}
	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		Values: map[string]interface{}{pendingField: string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd: %w", err)
	}
	return nil
}

// Depth 尚未 ack 的消息數（含還沒被讀取的）
func (q *RedisStreamIssueQueueImpl) Depth(ctx context.Context) (int64, error) {
	groups, err := q.client.XInfoGroups(ctx, StreamKey).Result()
	if err != nil {
		return 0, err
	}
	for _, g := range groups {
		if g.Name == ConsumerGroupName {
			return g.Pending + g.Lag, nil
		}
	}
	return 0, nil
}

func (q *RedisStreamIssueQueueImpl) SubscribePending(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)

	// 兩個 goroutine 都會寫 out，全部結束後才能 close
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		q.readLoop(ctx, out)
	}()
	go func() {
		defer wg.Done()
		q.reclaimLoop(ctx, out)
	}()
	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// readLoop 只讀新消息(">")；已投遞未 ack 的由 reclaimLoop 逾時後領回
func (q *RedisStreamIssueQueueImpl) readLoop(ctx context.Context, out chan<- Delivery) {
	for ctx.Err() == nil {
		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    ConsumerGroupName,
			Consumer: q.consumer,
			Streams:  []string{StreamKey, ">"},
			Count:    batchSize,
			Block:    q.cfg.ReadGroupBlockTime,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Error("XReadGroup failed", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}

		for _, stream := range streams {
			if !q.deliver(ctx, out, stream.Messages) {
				return
			}
		}
	}
}

// reclaimLoop 定時以 XAUTOCLAIM 領回閒置過久的消息
func (q *RedisStreamIssueQueueImpl) reclaimLoop(ctx context.Context, out chan<- Delivery) {
	ticker := time.NewTicker(q.cfg.ClaimMinIdleTime)
	defer ticker.Stop()
	start := "0-0"

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		claimed, next, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   StreamKey,
			Group:    ConsumerGroupName,
			Consumer: q.consumer,
			MinIdle:  q.cfg.ClaimMinIdleTime,
			Start:    start,
			Count:    batchSize,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			q.log.Error("XAutoClaim failed", zap.Error(err))
			continue
		}
		start = next
		if start == "" {
			start = "0-0"
		}

		retry := make([]redis.XMessage, 0, len(claimed))
		for _, msg := range claimed {
			if q.exceeded(ctx, msg.ID) {
				continue
			}
			retry = append(retry, msg)
		}
		if !q.deliver(ctx, out, retry) {
			return
		}
	}
}

// exceeded 投遞次數超過上限時 ack 丟棄
func (q *RedisStreamIssueQueueImpl) exceeded(ctx context.Context, messageID string) bool {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: StreamKey,
		Group:  ConsumerGroupName,
		Start:  messageID,
		End:    messageID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return false
	}
	if int(pending[0].RetryCount) <= q.cfg.MaxDeliveries {
		return false
	}

	q.log.Error("dropping pending issue after max deliveries, ticket must be issued manually",
		zap.String("message_id", messageID),
		zap.Int64("deliveries", pending[0].RetryCount),
	)
	q.ack(ctx, messageID)
	return true
}

func (q *RedisStreamIssueQueueImpl) deliver(ctx context.Context, out chan<- Delivery, msgs []redis.XMessage) bool {
	for _, msg := range msgs {
		d, ok := q.decode(ctx, msg)
		if !ok {
			continue
		}
		select {
		case out <- d:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (q *RedisStreamIssueQueueImpl) decode(ctx context.Context, msg redis.XMessage) (Delivery, bool) {
	var pending model.PendingIssue
	payload, ok := msg.Values[pendingField].(string)
	if !ok || json.Unmarshal([]byte(payload), &pending) != nil {
		q.log.Warn("discarding malformed message", zap.String("message_id", msg.ID))
		q.ack(ctx, msg.ID)
		return Delivery{}, false
	}

	id := msg.ID
	return Delivery{
		Data: &pending,
		Ack:  func() { q.ack(ctx, id) },
		Nack: func(requeue bool) {
			if requeue {
				// 留在 PEL，ClaimMinIdleTime 後由 reclaimLoop 領回，形成延遲重試
				q.log.Info("pending issue nacked, will retry", zap.String("message_id", id))
				return
			}
			q.ack(ctx, id)
		},
	}, true
}

func (q *RedisStreamIssueQueueImpl) ack(ctx context.Context, messageID string) {
	if err := q.client.XAck(ctx, StreamKey, ConsumerGroupName, messageID).Err(); err != nil {
		q.log.Error("XAck failed", zap.String("message_id", messageID), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
