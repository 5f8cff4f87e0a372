package storage

import (
	"context"
	"sort"
	"sync"

	apperrors "go-gin-lucky-draw/pkg/app_errors"
)

// MemoryStore 單一程序內的暫存，重啟後資料消失，也不與其他實例共享
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string][]byte),
	}
}

func (s *MemoryStore) collection(name string) map[string][]byte {
	c, ok := s.docs[name]
	if !ok {
		c = make(map[string][]byte)
		s.docs[name] = c
	}
	return c
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.collection(collection)[id]
	if !ok {
		return nil, apperrors.ErrDocumentNotFound
	}
	return clone(value), nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collection(collection)[id] = clone(value)
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, collection, id string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	if _, ok := c[id]; ok {
		return apperrors.ErrDocumentExists
	}
	c[id] = clone(value)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fn MutateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	current, ok := c[id]
	if !ok {
		current = nil
	}
	next, err := fn(clone(current))
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	c[id] = clone(next)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.collection(collection)
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([][]byte, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(c[id]))
	}
	return out, nil
}

func (s *MemoryStore) Durable() bool {
	return false
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
