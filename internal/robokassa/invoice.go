package robokassa

import (
	"sync"
	"time"
)

// maxInvID номера счетов Robokassa помещаются в int32
const maxInvID = 2147483647

// InvoiceIDs выдает номера счетов на основе миллисекундного времени,
// строго возрастающие в пределах процесса.
type InvoiceIDs struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewInvoiceIDs создает генератор. nil now означает time.Now.
func NewInvoiceIDs(now func() time.Time) *InvoiceIDs {
	if now == nil {
		now = time.Now
	}
	return &InvoiceIDs{now: now}
}

// Next возвращает следующий номер счета
func (g *InvoiceIDs) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.now().UnixMilli() % maxInvID
	if id <= g.last {
		id = g.last + 1
		if id >= maxInvID {
			id = 1
		}
	}
	g.last = id
	return id
}
