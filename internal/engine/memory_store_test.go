package engine_test

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	. "github.com/resotel/tariff-conventions/internal/engine"
	"github.com/resotel/tariff-conventions/internal/model"
	"github.com/resotel/tariff-conventions/internal/repository"
)

// memStore is an in-memory TxStore used to exercise the engine without
// a database.  Writes inside WithScopeLock apply immediately; the tests
// only rely on the mutual exclusion, which a per-scope mutex provides
// the same way the MySQL advisory lock does in production.
type memStore struct {
	mu    sync.Mutex
	seq   uint64
	rows  map[uint64]model.Convention
	locks map[[2]uint64]*sync.Mutex
}

func newMemStore() *memStore {
	return &memStore{
		rows:  make(map[uint64]model.Convention),
		locks: make(map[[2]uint64]*sync.Mutex),
	}
}

func (s *memStore) GetByID(_ context.Context, id uint64) (*model.Convention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrConventionNotFound
	}
	c.MonthlyPrices = c.MonthlyPrices.Clone()
	return &c, nil
}

func (s *memStore) FindActiveByScope(_ context.Context, clientID, categoryID, excludeID uint64) ([]model.Convention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Convention
	for id, c := range s.rows {
		if !c.Active || c.ClientID != clientID || c.CategoryID != categoryID {
			continue
		}
		if excludeID != 0 && id == excludeID {
			continue
		}
		c.MonthlyPrices = c.MonthlyPrices.Clone()
		out = append(out, c)
	}
	return out, nil
}

func (s *memStore) FindCovering(_ context.Context, clientID, categoryID uint64, on time.Time) ([]model.Convention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Convention
	for _, c := range s.rows {
		if !c.Active || c.ClientID != clientID || c.CategoryID != categoryID {
			continue
		}
		if !Contains(c.ValidityStart, c.ValidityEnd, on) {
			continue
		}
		c.MonthlyPrices = c.MonthlyPrices.Clone()
		out = append(out, c)
	}
	return out, nil
}

func (s *memStore) Insert(_ context.Context, c *model.Convention) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	c.ID = s.seq
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	stored := *c
	stored.MonthlyPrices = c.MonthlyPrices.Clone()
	s.rows[c.ID] = stored
	return c.ID, nil
}

func (s *memStore) Update(_ context.Context, c *model.Convention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.rows[c.ID]
	if !ok {
		return repository.ErrConventionNotFound
	}
	stored := *c
	stored.MonthlyPrices = c.MonthlyPrices.Clone()
	stored.CreatedAt = prev.CreatedAt
	stored.UpdatedAt = time.Now().UTC()
	s.rows[c.ID] = stored
	return nil
}

func (s *memStore) WithScopeLock(_ context.Context, clientID, categoryID uint64, fn func(Store) error) error {
	s.mu.Lock()
	key := [2]uint64{clientID, categoryID}
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(s)
}

// Test helpers shared across the engine tests.

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}
