package orders

import (
	"context"
	"time"

	"github.com/BearBump/CourierBox/internal/models"
	"github.com/BearBump/CourierBox/internal/services/statusflow"
	"github.com/pkg/errors"
)

// HistoryView is the read-only list of completed orders.
type HistoryView struct {
	core
	api    Backend
	orders []Item
}

func NewHistoryView(api Backend, opts Options) *HistoryView {
	return &HistoryView{core: newCore(opts), api: api}
}

func (v *HistoryView) Load(ctx context.Context) error {
	gen, err := v.startLoad()
	if err != nil {
		return err
	}
	list, err := v.api.CompletedOrders(ctx)
	if err != nil {
		v.applyLoad(gen, func() { v.orders = nil })
		return errors.Wrap(err, "completed orders")
	}
	items := make([]Item, 0, len(list))
	for _, o := range list {
		items = append(items, newItem(o))
	}
	sortItems(items, SortDateDesc)
	if !v.applyLoad(gen, func() { v.orders = items }) {
		return ErrClosed
	}
	return nil
}

func (v *HistoryView) Orders() []Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Item(nil), v.orders...)
}

// DetailView shows one order and lets the courier claim it from there.
type DetailView struct {
	core
	api Backend
	ttl time.Duration
	// email is written into the order when the backend answers without a body.
	email func() string
	order *Item
}

func NewDetailView(api Backend, email func() string, opts Options) *DetailView {
	if email == nil {
		email = func() string { return "" }
	}
	return &DetailView{core: newCore(opts), api: api, ttl: 2 * time.Second, email: email}
}

func (v *DetailView) Load(ctx context.Context, id int64) (Item, error) {
	gen, err := v.startLoad()
	if err != nil {
		return Item{}, err
	}
	o, err := v.api.GetOrder(ctx, id)
	if err != nil {
		v.applyLoad(gen, func() { v.order = nil })
		return Item{}, errors.Wrapf(err, "get order %d", id)
	}
	it := v.annotate(o)
	if !v.applyLoad(gen, func() { v.order = &it }) {
		return Item{}, ErrClosed
	}
	return it, nil
}

func (v *DetailView) Current() (Item, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.order == nil {
		return Item{}, false
	}
	return v.annotate(v.order.Order), true
}

func (v *DetailView) annotate(o models.Order) Item {
	it := newItem(o)
	it.Actions = statusflow.ForOrder(o, v.opts.Clock.Now())
	it.CanCancel = statusflow.CanCancel(o.Status)
	return it
}

// Claim assigns the loaded order to the courier.
func (v *DetailView) Claim(ctx context.Context, id int64) Result {
	return v.run(ctx, mutation{
		kind:    models.ActionClaim,
		orderID: id,
		validate: func() (models.OrderStatus, error) {
			if v.order == nil || v.order.ID != id {
				return "", ErrUnknownOrder
			}
			if !v.order.IsUnclaimed() {
				return v.order.Status, errors.Wrapf(ErrInvalidTransition, "order %d already has a courier", id)
			}
			return v.order.Status, nil
		},
		call: func(ctx context.Context) (*models.Order, error) {
			return v.api.AssignOrder(ctx, id)
		},
		onSuccess: func(resp *models.Order) {
			if v.order == nil || v.order.ID != id {
				return
			}
			if resp != nil && !resp.IsUnclaimed() {
				v.order.Courier = resp.Courier
				if resp.Status != "" {
					v.order.Status = resp.Status
					v.order.StatusChangedAt = resp.StatusChangedAt
				}
				return
			}
			email := models.FlexString(v.email())
			v.order.Courier = &email
		},
		successText: claimSuccessText,
		successTTL:  v.ttl,
		errorTTL:    5 * time.Second,
	})
}
