package repository

import (
	"testing"
	"time"

	"go-gin-lucky-draw/internal/model"
	"go-gin-lucky-draw/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// testBackends 每個測試同時跑記憶體與 Redis 兩種後端
func testBackends() map[string]func(t *testing.T) storage.Store {
	return map[string]func(t *testing.T) storage.Store{
		"memory": func(t *testing.T) storage.Store {
			return storage.NewMemoryStore()
		},
		"redis": func(t *testing.T) storage.Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return storage.NewRedisStore(client, "", storage.RetryPolicy{
				MaxTries:   5,
				MaxElapsed: 5 * time.Second,
			})
		},
	}
}

func testCatalog() []model.PrizeDefinition {
	return []model.PrizeDefinition{
		{ID: "v50", Name: "Voucher 50.000đ", Weight: 0.40, TotalStock: 100},
		{ID: "v100", Name: "Voucher 100.000đ", Weight: 0.25, TotalStock: 100},
		{ID: "v150", Name: "Voucher 150.000đ", Weight: 0.15, TotalStock: 100},
		{ID: "doudou", Name: "Thỏ Doudou Babybio", Weight: 0.10, TotalStock: 100},
		{ID: "bear", Name: "Gấu bông Babybio", Weight: 0.10, TotalStock: 100},
	}
}

func testHolder() model.Holder {
	return model.Holder{Name: "Lan", Phone: "0901234567", Store: "Q1", Product: "Babybio Gold"}
}
