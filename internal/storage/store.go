package storage

import (
	"context"
	"errors"
)

// collection 名稱，對應活動原本的文件結構
const (
	CollectionReceipts       = "used_invoices"
	CollectionConfig         = "config"
	CollectionTickets        = "tickets"
	CollectionTicketReceipts = "ticket_receipts"
	CollectionEntitlements   = "draw_entitlements"

	DocPrizeInventory = "prize_inventory"
)

// MutateFunc 在交易中計算新值。current 為 nil 表示文件不存在；
// 回傳 nil 表示不寫入。回傳的 error 不會重試，原樣回給呼叫端。
type MutateFunc func(current []byte) ([]byte, error)

// Store 文件式儲存，所有寫入者共用
type Store interface {
	// Get 不存在時回傳 ErrDocumentNotFound
	Get(ctx context.Context, collection, id string) ([]byte, error)
	// Set 無條件覆寫
	Set(ctx context.Context, collection, id string, value []byte) error
	// Create 不存在才寫入，已存在時回傳 ErrDocumentExists，檢查與寫入為同一個原子操作
	Create(ctx context.Context, collection, id string, value []byte) error
	// Update 原子的 read-modify-write，衝突時以新的讀值重跑 fn
	Update(ctx context.Context, collection, id string, fn MutateFunc) error
	List(ctx context.Context, collection string) ([][]byte, error)
	// Durable 是否為跨程序共享的遠端儲存
	Durable() bool
	Ping(ctx context.Context) error
	Close() error
}

// errConflict 樂觀鎖失敗，需重新讀取
var errConflict = errors.New("write conflict")
