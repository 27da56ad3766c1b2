package lock

import (
	"context"
	"sync"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
)

// Locker is a non-blocking busy guard. TryAcquire fails with
// domain.ErrAlreadyProcessing while another holder owns key; it never queues.
type Locker interface {
	TryAcquire(ctx context.Context, key string) (Release, error)
}

// Release gives the key back. Calling it more than once is a no-op.
type Release func()

type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryAcquire(_ context.Context, key string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, domain.ErrAlreadyProcessing
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

func SettlementKey(orderID string) string {
	return "settle:" + orderID
}

func StockKey(orderID string) string {
	return "stock:" + orderID
}
