package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/bookstore/internal/store"
)

type usage struct {
	bookID int64
	at     time.Time
}

// UsageStore implements store.UsageStore using in-memory storage.
type UsageStore struct {
	mu     sync.RWMutex
	usages map[int64][]usage // customer_id -> usages
}

var _ store.UsageStore = (*UsageStore)(nil)

// NewUsageStore creates a new in-memory usage store.
func NewUsageStore() *UsageStore {
	return &UsageStore{
		usages: make(map[int64][]usage),
	}
}

// Record stores one book usage.
func (s *UsageStore) Record(ctx context.Context, customerID, bookID int64, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.usages[customerID] = append(s.usages[customerID], usage{bookID: bookID, at: at})
	return nil
}

// CountSince counts the customer's usages at or after since.
func (s *UsageStore) CountSince(ctx context.Context, customerID int64, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, u := range s.usages[customerID] {
		if !u.at.Before(since) {
			count++
		}
	}
	return count, nil
}
