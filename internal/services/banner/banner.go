// Package banner holds the single transient outcome banner of a view.
package banner

import (
	"sync"
	"time"

	"github.com/BearBump/CourierBox/internal/clock"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

type Banner struct {
	ID        uint64    `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	OrderID   int64     `json:"orderId,omitempty"`
	ShownAt   time.Time `json:"shownAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Board shows at most one banner; a new one replaces the old, and each
// disappears on its own after its ttl.
type Board struct {
	clock clock.Clock

	mu    sync.Mutex
	seq   uint64
	cur   *Banner
	timer clock.Timer
}

func NewBoard(c clock.Clock) *Board {
	if c == nil {
		c = clock.Real{}
	}
	return &Board{clock: c}
}

func (b *Board) Show(kind Kind, text string, orderID int64, ttl time.Duration) Banner {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.seq++
	now := b.clock.Now()
	bn := Banner{ID: b.seq, Kind: kind, Text: text, OrderID: orderID, ShownAt: now, ExpiresAt: now.Add(ttl)}
	b.cur = &bn

	id := b.seq
	b.timer = b.clock.AfterFunc(ttl, func() { b.expire(id) })
	return bn
}

func (b *Board) expire(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cur != nil && b.cur.ID == id {
		b.cur = nil
		b.timer = nil
	}
}

func (b *Board) Current() (Banner, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cur == nil {
		return Banner{}, false
	}
	return *b.cur, true
}

// Blocks reports whether a visible banner is about orderID; its controls stay disabled meanwhile.
func (b *Board) Blocks(orderID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur != nil && b.cur.OrderID == orderID
}

func (b *Board) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.cur = nil
}
