package orders

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/CourierBox/internal/models"
	"github.com/BearBump/CourierBox/internal/services/statusflow"
	"github.com/pkg/errors"
)

const (
	unclaimSuccessText = "Вы отказались от заказа"
	statusSuccessText  = "Статус заказа обновлён"
)

// ActiveView lists the orders assigned to the courier and drives their statuses.
type ActiveView struct {
	core
	api    Backend
	ttl    time.Duration
	orders []Item
}

func NewActiveView(api Backend, bannerTTL time.Duration, opts Options) *ActiveView {
	if bannerTTL <= 0 {
		bannerTTL = 3 * time.Second
	}
	return &ActiveView{core: newCore(opts), api: api, ttl: bannerTTL}
}

func (v *ActiveView) Load(ctx context.Context) error {
	gen, err := v.startLoad()
	if err != nil {
		return err
	}
	list, err := v.api.AssignedOrders(ctx)
	if err != nil {
		v.applyLoad(gen, func() { v.orders = nil })
		return errors.Wrap(err, "assigned orders")
	}
	items := make([]Item, 0, len(list))
	for _, o := range list {
		items = append(items, newItem(o))
	}
	if !v.applyLoad(gen, func() { v.orders = items }) {
		return ErrClosed
	}
	return nil
}

// Orders returns the list with moves computed for the current moment, so an
// undo disappears once its window has passed.
func (v *ActiveView) Orders() []Item {
	now := v.opts.Clock.Now()
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Item, len(v.orders))
	for i, it := range v.orders {
		it.Actions = statusflow.ForOrder(it.Order, now)
		it.CanCancel = statusflow.CanCancel(it.Status)
		it.StatusLabel = statusflow.Label(it.Status)
		out[i] = it
	}
	return out
}

// Unclaim hands the order back; on success it leaves the list.
func (v *ActiveView) Unclaim(ctx context.Context, id int64) Result {
	return v.run(ctx, mutation{
		kind:    models.ActionUnclaim,
		orderID: id,
		validate: func() (models.OrderStatus, error) {
			i := indexOf(v.orders, id)
			if i < 0 {
				return "", ErrUnknownOrder
			}
			from := v.orders[i].Status
			if !statusflow.CanCancel(from) {
				return from, errors.Wrapf(ErrInvalidTransition, "order %d in status %s cannot be cancelled", id, from)
			}
			return from, nil
		},
		call: func(ctx context.Context) (*models.Order, error) {
			return v.api.UnassignOrder(ctx, id)
		},
		onSuccess: func(*models.Order) {
			if i := indexOf(v.orders, id); i >= 0 {
				v.orders = removeAt(v.orders, i)
			}
		},
		successText: unclaimSuccessText,
		successTTL:  v.ttl,
		errorTTL:    v.ttl,
	})
}

// AdvanceStatus moves the order one step forward; to must be that step.
func (v *ActiveView) AdvanceStatus(ctx context.Context, id int64, to models.OrderStatus) Result {
	return v.transition(ctx, models.ActionAdvance, id, to, func(a statusflow.Actions) *models.OrderStatus { return a.Next })
}

// RevertStatus undoes the last step while the undo window is open.
func (v *ActiveView) RevertStatus(ctx context.Context, id int64, to models.OrderStatus) Result {
	return v.transition(ctx, models.ActionRevert, id, to, func(a statusflow.Actions) *models.OrderStatus { return a.Prev })
}

func (v *ActiveView) transition(ctx context.Context, kind models.ActionKind, id int64, to models.OrderStatus,
	pick func(statusflow.Actions) *models.OrderStatus) Result {
	return v.run(ctx, mutation{
		kind:    kind,
		orderID: id,
		to:      to,
		validate: func() (models.OrderStatus, error) {
			i := indexOf(v.orders, id)
			if i < 0 {
				return "", ErrUnknownOrder
			}
			o := v.orders[i].Order
			allowed := pick(statusflow.ForOrder(o, v.opts.Clock.Now()))
			if allowed == nil || *allowed != to {
				return o.Status, errors.Wrapf(ErrInvalidTransition, "order %d: %s -> %s", id, o.Status, to)
			}
			return o.Status, nil
		},
		call: func(ctx context.Context) (*models.Order, error) {
			resp, err := v.api.UpdateOrderStatus(ctx, id, to)
			if err != nil || resp != nil {
				return resp, err
			}
			// без тела ответа берём свежий заказ, чтобы знать status_changed_at
			o, gerr := v.api.GetOrder(ctx, id)
			if gerr != nil {
				slog.Warn("refetch after status update failed", "order_id", id, "error", gerr.Error())
				return nil, nil
			}
			return &o, nil
		},
		onSuccess: func(resp *models.Order) {
			i := indexOf(v.orders, id)
			if i < 0 {
				return
			}
			if resp == nil {
				// статус подтверждён, а время смены неизвестно: действия скрыты до перезагрузки
				v.orders[i].Status = to
				v.orders[i].StatusChangedAt = ""
				return
			}
			v.orders[i].Status = resp.Status
			v.orders[i].StatusChangedAt = resp.StatusChangedAt
		},
		successText: statusSuccessText,
		successTTL:  v.ttl,
		errorTTL:    v.ttl,
	})
}
