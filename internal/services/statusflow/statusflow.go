// Package statusflow decides which status moves a courier may make on an order.
// Every function here is pure and total: unknown statuses simply get no actions.
package statusflow

import (
	"time"

	"github.com/BearBump/CourierBox/internal/models"
)

// UndoWindow is how long after a status change the previous status may be restored.
const UndoWindow = 10 * time.Minute

var forward = map[models.OrderStatus]models.OrderStatus{
	models.OrderStatusCourierAssigned: models.OrderStatusCourierOnTheWay,
	models.OrderStatusCourierOnTheWay: models.OrderStatusAtLocation,
	models.OrderStatusAtLocation:      models.OrderStatusCourierOnTheWayToMaster,
}

var backward = map[models.OrderStatus]models.OrderStatus{
	models.OrderStatusCourierOnTheWay:         models.OrderStatusCourierAssigned,
	models.OrderStatusAtLocation:              models.OrderStatusCourierOnTheWay,
	models.OrderStatusCourierOnTheWayToMaster: models.OrderStatusAtLocation,
}

var cancellable = map[models.OrderStatus]struct{}{
	models.OrderStatusPending:         {},
	models.OrderStatusCourierAssigned: {},
	models.OrderStatusCourierOnTheWay: {},
	models.OrderStatusAtLocation:      {},
}

var labels = map[models.OrderStatus]string{
	models.OrderStatusPending:                 "Ожидает",
	models.OrderStatusAwaitingCourier:         "Ожидает назначения курьера",
	models.OrderStatusCourierAssigned:         "Курьер назначен",
	models.OrderStatusCourierOnTheWay:         "Курьер в пути",
	models.OrderStatusAtLocation:              "На месте выполнения",
	models.OrderStatusCourierOnTheWayToMaster: "Курьер в пути к мастеру",
	models.OrderStatusInProgress:              "В работе",
	models.OrderStatusCompleted:               "Завершён",
	models.OrderStatusCancelled:               "Отменён",
	models.OrderStatusReturn:                  "Возврат",
}

// Next returns the forward successor of s, if the chain defines one.
func Next(s models.OrderStatus) (models.OrderStatus, bool) {
	n, ok := forward[s]
	return n, ok
}

// Previous returns the undo target of s without looking at time.
func Previous(s models.OrderStatus) (models.OrderStatus, bool) {
	p, ok := backward[s]
	return p, ok
}

type Actions struct {
	Next *models.OrderStatus `json:"next,omitempty"`
	Prev *models.OrderStatus `json:"prev,omitempty"`
}

func (a Actions) Empty() bool {
	return a.Next == nil && a.Prev == nil
}

// ActionsAt computes the moves legal at now. Without a known change time nothing is offered.
func ActionsAt(s models.OrderStatus, changedAt time.Time, known bool, now time.Time) Actions {
	if !known || changedAt.IsZero() {
		return Actions{}
	}
	var a Actions
	if n, ok := forward[s]; ok {
		a.Next = &n
	}
	if p, ok := backward[s]; ok && now.Sub(changedAt) <= UndoWindow {
		a.Prev = &p
	}
	return a
}

// ForOrder is ActionsAt fed from the order's raw status_changed_at.
func ForOrder(o models.Order, now time.Time) Actions {
	changedAt, ok := o.StatusChangedTime()
	return ActionsAt(o.Status, changedAt, ok, now)
}

func CanCancel(s models.OrderStatus) bool {
	_, ok := cancellable[s]
	return ok
}

func IsKnown(s models.OrderStatus) bool {
	_, ok := labels[s]
	return ok
}

// Label returns a display name; unknown statuses are shown as is.
func Label(s models.OrderStatus) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}
