package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	apperrors "go-gin-lucky-draw/pkg/app_errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultRedisPrefix = "luckydraw:"

	// 單次嘗試內樂觀鎖衝突的重讀次數，用完才進入退避
	maxConflictRereads = 32

	// 操作記號保留時間，需長於一次呼叫的重試總時間
	opMarkerTTL = 5 * time.Minute
)

var opMarkerSeconds = strconv.Itoa(int(opMarkerTTL / time.Second))

// compareAndSetScript 比對目前值後寫入，成功時留下這次操作的記號
//
//	KEYS[1] collection hash, KEYS[2] 操作記號
//	ARGV[1] id, ARGV[2] 預期的舊值, ARGV[3] "0" 表示預期不存在, ARGV[4] 新值, ARGV[5] 記號秒數
var compareAndSetScript = redis.NewScript(`
	local current = redis.call('HGET', KEYS[1], ARGV[1])

	if ARGV[3] == '0' then
		-- 預期不存在
		if current then
			return 0
		end
	else
		if current ~= ARGV[2] then
			return 0
		end
	end

	redis.call('HSET', KEYS[1], ARGV[1], ARGV[4])
	redis.call('SET', KEYS[2], '1', 'EX', ARGV[5])
	return 1
`)

// createScript 不存在才寫入，成功時留下操作記號
//
//	KEYS[1] collection hash, KEYS[2] 操作記號
//	ARGV[1] id, ARGV[2] 值, ARGV[3] 記號秒數
var createScript = redis.NewScript(`
	if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
		return 0
	end
	redis.call('SET', KEYS[2], '1', 'EX', ARGV[3])
	return 1
`)

// RedisStore 每個 collection 一個 hash：luckydraw:<collection> -> {id: json}
type RedisStore struct {
	client *redis.Client
	prefix string
	retry  RetryPolicy
}

func NewRedisStore(client *redis.Client, prefix string, retry RetryPolicy) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		retry:  retry,
	}
}

func (s *RedisStore) key(collection string) string {
	return s.prefix + collection
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var value []byte
	err := s.retry.Do(ctx, "redis.get", func() error {
		raw, err := s.client.HGet(ctx, s.key(collection), id).Bytes()
		if errors.Is(err, redis.Nil) {
			return permanent(apperrors.ErrDocumentNotFound)
		}
		if err != nil {
			return err
		}
		value = raw
		return nil
	})
	return value, err
}

func (s *RedisStore) Set(ctx context.Context, collection, id string, value []byte) error {
	return s.retry.Do(ctx, "redis.set", func() error {
		return s.client.HSet(ctx, s.key(collection), id, value).Err()
	})
}

// opKey 每次呼叫一個記號；腳本回應遺失時用來確認寫入是否已生效
func (s *RedisStore) opKey() string {
	return s.prefix + "op:" + uuid.New().String()
}

func (s *RedisStore) committed(ctx context.Context, opKey string) (bool, error) {
	n, err := s.client.Exists(ctx, opKey).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) Create(ctx context.Context, collection, id string, value []byte) error {
	key, opKey := s.key(collection), s.opKey()
	ambiguous := false

	return s.retry.Do(ctx, "redis.create", func() error {
		if ambiguous {
			done, err := s.committed(ctx, opKey)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			ambiguous = false
		}

		created, err := createScript.Run(ctx, s.client, []string{key, opKey}, id, value, opMarkerSeconds).Int()
		if err != nil {
			ambiguous = true
			return err
		}
		if created == 0 {
			return permanent(apperrors.ErrDocumentExists)
		}
		return nil
	})
}

func (s *RedisStore) Update(ctx context.Context, collection, id string, fn MutateFunc) error {
	key, opKey := s.key(collection), s.opKey()
	ambiguous := false

	return s.retry.Do(ctx, "redis.update", func() error {
		// 上一次的腳本可能已生效，不能再套用一次 fn
		if ambiguous {
			done, err := s.committed(ctx, opKey)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			ambiguous = false
		}

		for i := 0; i < maxConflictRereads; i++ {
			current, err := s.client.HGet(ctx, key, id).Bytes()
			exists := true
			if errors.Is(err, redis.Nil) {
				current, exists = nil, false
			} else if err != nil {
				return err
			}

			next, err := fn(current)
			if err != nil {
				return permanent(err)
			}
			if next == nil {
				return nil
			}

			mode := "1"
			if !exists {
				mode = "0"
			}
			ok, err := compareAndSetScript.Run(ctx, s.client, []string{key, opKey}, id, current, mode, next, opMarkerSeconds).Int()
			if err != nil {
				ambiguous = true
				return err
			}
			if ok == 1 {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return permanent(err)
			}
		}
		return fmt.Errorf("%s/%s: %w", collection, id, errConflict)
	})
}

func (s *RedisStore) List(ctx context.Context, collection string) ([][]byte, error) {
	var out [][]byte
	err := s.retry.Do(ctx, "redis.list", func() error {
		values, err := s.client.HVals(ctx, s.key(collection)).Result()
		if err != nil {
			return err
		}
		out = make([][]byte, 0, len(values))
		for _, v := range values {
			out = append(out, []byte(v))
		}
		return nil
	})
	return out, err
}

func (s *RedisStore) Durable() bool {
	return true
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close client 由呼叫端管理，queue 也共用同一個連線
func (s *RedisStore) Close() error {
	return nil
}
