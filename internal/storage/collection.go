package storage

import (
	"context"
	"fmt"
	"reflect"

	apperrors "go-gin-lucky-draw/pkg/app_errors"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

// Validatable 自訂的文件檢查，struct tag 以外的規則
type Validatable interface {
	Validate() error
}

var validate = validator.New()

// Collection 型別化的 collection，讀寫時都會做驗證，不合格的文件不會進出儲存層
type Collection[T any] struct {
	store Store
	name  string
}

func NewCollection[T any](store Store, name string) *Collection[T] {
	return &Collection[T]{
		store: store,
		name:  name,
	}
}

func (c *Collection[T]) Name() string {
	return c.name
}

func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	raw, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	return c.decode(id, raw)
}

func (c *Collection[T]) Set(ctx context.Context, id string, doc *T) error {
	raw, err := c.encode(id, doc)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.name, id, raw)
}

func (c *Collection[T]) Create(ctx context.Context, id string, doc *T) error {
	raw, err := c.encode(id, doc)
	if err != nil {
		return err
	}
	return c.store.Create(ctx, c.name, id, raw)
}

// Update current 為 nil 表示文件不存在；fn 回傳 nil 表示不寫入
func (c *Collection[T]) Update(ctx context.Context, id string, fn func(current *T) (*T, error)) error {
	return c.store.Update(ctx, c.name, id, func(raw []byte) ([]byte, error) {
		var current *T
		if raw != nil {
			doc, err := c.decode(id, raw)
			if err != nil {
				return nil, err
			}
			current = doc
		}

		next, err := fn(current)
		if err != nil || next == nil {
			return nil, err
		}
		return c.encode(id, next)
	})
}

func (c *Collection[T]) List(ctx context.Context) ([]*T, error) {
	raws, err := c.store.List(ctx, c.name)
	if err != nil {
		return nil, err
	}

	docs := make([]*T, 0, len(raws))
	for _, raw := range raws {
		doc, err := c.decode("", raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Collection[T]) encode(id string, doc *T) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: %s/%s: nil document", apperrors.ErrInvalidDocument, c.name, id)
	}
	if err := check(doc); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", apperrors.ErrInvalidDocument, c.name, id, err)
	}
	return json.Marshal(doc)
}

func (c *Collection[T]) decode(id string, raw []byte) (*T, error) {
	doc := new(T)
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", apperrors.ErrInvalidDocument, c.name, id, err)
	}
	if err := check(doc); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", apperrors.ErrInvalidDocument, c.name, id, err)
	}
	return doc, nil
}

func check(doc any) error {
	if reflect.ValueOf(doc).Elem().Kind() == reflect.Struct {
		if err := validate.Struct(doc); err != nil {
			return err
		}
	}
	if v, ok := doc.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
