// Package orders owns the courier's order lists: available orders near the courier,
// the courier's active orders, history and single-order details.
package orders

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/CourierBox/internal/clock"
	"github.com/BearBump/CourierBox/internal/integrations/backend"
	"github.com/BearBump/CourierBox/internal/models"
	"github.com/BearBump/CourierBox/internal/services/banner"
	"github.com/BearBump/CourierBox/internal/services/statusflow"
	"github.com/pkg/errors"
)

type Backend interface {
	ListOrders(ctx context.Context) ([]models.Order, error)
	AssignedOrders(ctx context.Context) ([]models.Order, error)
	CompletedOrders(ctx context.Context) ([]models.Order, error)
	GetOrder(ctx context.Context, id int64) (models.Order, error)
	AssignOrder(ctx context.Context, id int64) (*models.Order, error)
	UnassignOrder(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error)
}

// Recorder receives every completed courier action. Record runs on the action
// path and must not block; implementations log their own failures.
type Recorder interface {
	Record(ctx context.Context, rec models.ActionRecord)
}

// Recorders hands every record to each of its members in order.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, rec models.ActionRecord) {
	for _, r := range rs {
		if r != nil {
			r.Record(ctx, rec)
		}
	}
}

var (
	ErrActionPending     = errors.New("an action on this order is already in progress")
	ErrInvalidTransition = errors.New("status transition is not allowed")
	ErrUnknownOrder      = errors.New("order is not in the list")
	ErrClosed            = errors.New("view is closed")
)

// IsValidation reports errors raised before any network call.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrUnknownOrder)
}

// Item is an order as the courier sees it.
type Item struct {
	models.Order
	DistanceKm  *float64           `json:"distance_km"`
	Actions     statusflow.Actions `json:"actions"`
	CanCancel   bool               `json:"can_cancel"`
	StatusLabel string             `json:"status_label"`
}

func newItem(o models.Order) Item {
	return Item{Order: o, StatusLabel: statusflow.Label(o.Status)}
}

// Result is the outcome of one courier action.
type Result struct {
	OrderID int64         `json:"orderId"`
	Order   *models.Order `json:"order,omitempty"`
	Err     error         `json:"-"`
	// Dropped is set when the view closed before the backend answered.
	Dropped bool `json:"dropped,omitempty"`
}

type Options struct {
	Clock    clock.Clock
	Board    *banner.Board
	Recorder Recorder
	// Courier identifies the acting courier in journal records.
	Courier func() string
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Board == nil {
		o.Board = banner.NewBoard(o.Clock)
	}
	if o.Courier == nil {
		o.Courier = func() string { return "" }
	}
	return o
}

// core is the part every view shares: the view lock, the liveness flag and the
// per-order in-flight guard.
type core struct {
	opts Options

	mu      sync.Mutex
	closed  bool
	gen     uint64
	pending map[int64]struct{}
}

func newCore(opts Options) core {
	return core{opts: opts.withDefaults(), pending: make(map[int64]struct{})}
}

// Close marks the view unmounted. Late results are dropped from then on.
func (c *core) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *core) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// startLoad returns the generation a load must present to apply its result.
func (c *core) startLoad() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	c.gen++
	return c.gen, nil
}

// applyLoad runs apply under the view lock if gen is still current.
func (c *core) applyLoad(gen uint64, apply func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		return false
	}
	apply()
	return true
}

type mutation struct {
	kind    models.ActionKind
	orderID int64
	from    models.OrderStatus
	to      models.OrderStatus

	// validate runs under the view lock before anything goes to the network and
	// reports the order's current status.
	validate  func() (models.OrderStatus, error)
	call      func(ctx context.Context) (*models.Order, error)
	onSuccess func(resp *models.Order)

	successText string
	successTTL  time.Duration
	errorTTL    time.Duration
}

func (c *core) run(ctx context.Context, m mutation) Result {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{OrderID: m.orderID, Err: ErrClosed}
	}
	if m.validate != nil {
		from, err := m.validate()
		if err != nil {
			c.mu.Unlock()
			return Result{OrderID: m.orderID, Err: err}
		}
		if from != "" {
			m.from = from
		}
	}
	if _, busy := c.pending[m.orderID]; busy || c.opts.Board.Blocks(m.orderID) {
		c.mu.Unlock()
		return Result{OrderID: m.orderID, Err: ErrActionPending}
	}
	c.pending[m.orderID] = struct{}{}
	c.mu.Unlock()

	resp, err := m.call(ctx)
	res := Result{OrderID: m.orderID, Order: resp, Err: err}

	c.mu.Lock()
	delete(c.pending, m.orderID)
	if c.closed {
		res.Dropped = true
	} else if err != nil {
		c.opts.Board.Show(banner.KindError, backend.UserMessage(err), m.orderID, m.errorTTL)
	} else {
		if m.onSuccess != nil {
			m.onSuccess(resp)
		}
		c.opts.Board.Show(banner.KindSuccess, m.successText, m.orderID, m.successTTL)
	}
	c.mu.Unlock()

	if err != nil {
		slog.Warn("order action failed", "action", m.kind, "order_id", m.orderID, "error", err.Error())
	} else {
		slog.Info("order action done", "action", m.kind, "order_id", m.orderID, "to", m.to)
	}
	if res.Dropped {
		slog.Info("order action result dropped, view closed", "action", m.kind, "order_id", m.orderID)
	}

	c.record(ctx, m, err)
	return res
}

func (c *core) record(ctx context.Context, m mutation, err error) {
	if c.opts.Recorder == nil {
		return
	}
	rec := models.ActionRecord{
		Courier:    c.opts.Courier(),
		Action:     m.kind,
		OrderID:    m.orderID,
		FromStatus: m.from,
		ToStatus:   m.to,
		OK:         err == nil,
		At:         c.opts.Clock.Now().UTC(),
	}
	if err != nil {
		e := err.Error()
		rec.Error = &e
	}
	c.opts.Recorder.Record(context.WithoutCancel(ctx), rec)
}

func indexOf(items []Item, id int64) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func removeAt(items []Item, i int) []Item {
	out := make([]Item, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}
