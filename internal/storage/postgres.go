package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "go-gin-lucky-draw/pkg/app_errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentsSchema = `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT        NOT NULL,
		id         TEXT        NOT NULL,
		value      JSONB       NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (collection, id)
	);

	CREATE TABLE IF NOT EXISTS store_operations (
		op_id      UUID        PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// 操作記號保留時間，Migrate 時清掉過期的
const opRetention = "1 hour"

// PostgresStore 所有 collection 共用 documents 表
type PostgresStore struct {
	pool  *pgxpool.Pool
	retry RetryPolicy
}

func NewPostgresStore(pool *pgxpool.Pool, retry RetryPolicy) *PostgresStore {
	return &PostgresStore{
		pool:  pool,
		retry: retry,
	}
}

// Migrate 建立 documents 表
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, documentsSchema); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM store_operations WHERE applied_at < NOW() - $1::interval`, opRetention)
	return err
}

// committed commit 回應遺失時，確認該次操作是否已寫入
func (s *PostgresStore) committed(ctx context.Context, opID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM store_operations WHERE op_id = $1::uuid)`, opID).Scan(&exists)
	return exists, err
}

// resolve 上一次嘗試結果不明時先確認，已生效就不再重做
func (s *PostgresStore) resolve(ctx context.Context, opID string, ambiguous *bool) (bool, error) {
	if !*ambiguous {
		return false, nil
	}
	done, err := s.committed(ctx, opID)
	if err != nil {
		return false, err
	}
	*ambiguous = false
	return done, nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	query := `
		SELECT value::text
		FROM documents
		WHERE collection = $1 AND id = $2
	`

	var value string
	err := s.retry.Do(ctx, "postgres.get", func() error {
		err := s.pool.QueryRow(ctx, query, collection, id).Scan(&value)
		if errors.Is(err, pgx.ErrNoRows) {
			return permanent(apperrors.ErrDocumentNotFound)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, value []byte) error {
	query := `
		INSERT INTO documents (collection, id, value)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id)
		DO UPDATE SET value = EXCLUDED.value, updated_at = $4
	`

	return s.retry.Do(ctx, "postgres.set", func() error {
		_, err := s.pool.Exec(ctx, query, collection, id, string(value), time.Now().UTC())
		return err
	})
}

func (s *PostgresStore) Create(ctx context.Context, collection, id string, value []byte) error {
	// 文件與操作記號在同一個 statement 寫入
	query := `
		WITH inserted AS (
			INSERT INTO documents (collection, id, value)
			VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (collection, id) DO NOTHING
			RETURNING 1
		)
		INSERT INTO store_operations (op_id)
		SELECT $4::uuid FROM inserted
	`

	opID := uuid.New().String()
	ambiguous := false
	return s.retry.Do(ctx, "postgres.create", func() error {
		done, err := s.resolve(ctx, opID, &ambiguous)
		if err != nil || done {
			return err
		}

		result, err := s.pool.Exec(ctx, query, collection, id, string(value), opID)
		if err != nil {
			ambiguous = true
			return err
		}
		if result.RowsAffected() == 0 {
			return permanent(apperrors.ErrDocumentExists)
		}
		return nil
	})
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, fn MutateFunc) error {
	opID := uuid.New().String()
	ambiguous := false
	return s.retry.Do(ctx, "postgres.update", func() error {
		done, err := s.resolve(ctx, opID, &ambiguous)
		if err != nil || done {
			return err
		}
		return s.updateOnce(ctx, collection, id, opID, fn, &ambiguous)
	})
}

func (s *PostgresStore) updateOnce(ctx context.Context, collection, id, opID string, fn MutateFunc, ambiguous *bool) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// 鎖住該列，其他 Update 需等待本交易結束
	var raw string
	var current []byte
	err = tx.QueryRow(ctx, `
		SELECT value::text
		FROM documents
		WHERE collection = $1 AND id = $2
		FOR UPDATE
	`, collection, id).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		current = nil
	case err != nil:
		return err
	default:
		current = []byte(raw)
	}

	next, err := fn(current)
	if err != nil {
		return permanent(err)
	}
	if next == nil {
		return nil
	}

	if current == nil {
		result, err := tx.Exec(ctx, `
			INSERT INTO documents (collection, id, value)
			VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (collection, id) DO NOTHING
		`, collection, id, string(next))
		if err != nil {
			return err
		}
		// 同時有人建立了同一份文件，重新讀取
		if result.RowsAffected() == 0 {
			return fmt.Errorf("%s/%s: %w", collection, id, errConflict)
		}
	} else {
		_, err = tx.Exec(ctx, `
			UPDATE documents
			SET value = $3::jsonb, updated_at = $4
			WHERE collection = $1 AND id = $2
		`, collection, id, string(next), time.Now().UTC())
		if err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `INSERT INTO store_operations (op_id) VALUES ($1::uuid)`, opID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		*ambiguous = true
		return err
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, collection string) ([][]byte, error) {
	query := `
		SELECT value::text
		FROM documents
		WHERE collection = $1
		ORDER BY id
	`

	var out [][]byte
	err := s.retry.Do(ctx, "postgres.list", func() error {
		rows, err := s.pool.Query(ctx, query, collection)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([][]byte, 0)
		for rows.Next() {
			var value string
			if err := rows.Scan(&value); err != nil {
				return err
			}
			out = append(out, []byte(value))
		}
		return rows.Err()
	})
	return out, err
}

func (s *PostgresStore) Durable() bool {
	return true
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
