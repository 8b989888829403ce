package notifications

import (
	"strconv"
	"time"

	"github.com/BearBump/CourierBox/internal/models"
	"github.com/google/uuid"
)

// ToastDisplay is how long a toast stays on screen unless dismissed.
const ToastDisplay = 5 * time.Second

type ToastKind string

const (
	ToastInfo  ToastKind = "info"
	ToastError ToastKind = "error"
)

type Toast struct {
	ID             string    `json:"id"`
	Kind           ToastKind `json:"kind"`
	Title          string    `json:"title,omitempty"`
	Message        string    `json:"message"`
	Status         string    `json:"status,omitempty"`
	OrderID        int64     `json:"orderId,omitempty"`
	Link           string    `json:"link,omitempty"`
	NotificationID int64     `json:"notificationId,omitempty"`
	DisplayMs      int64     `json:"displayMs"`
	At             time.Time `json:"at"`
}

// Sink shows toasts to the courier.
type Sink interface {
	Notify(t Toast)
}

type SinkFunc func(t Toast)

func (f SinkFunc) Notify(t Toast) { f(t) }

// OrderLink is where a click on a toast about orderID leads.
func OrderLink(orderID int64) string {
	return "/my-orders/" + strconv.FormatInt(orderID, 10)
}

func eventToast(n models.Notification, ev models.ChannelEvent, at time.Time) Toast {
	t := Toast{
		ID:             uuid.NewString(),
		Kind:           ToastInfo,
		Title:          ev.Title,
		Message:        ev.Message,
		Status:         ev.Status,
		NotificationID: n.ID,
		DisplayMs:      ToastDisplay.Milliseconds(),
		At:             at,
	}
	if ev.OrderID > 0 {
		t.OrderID = ev.OrderID
		t.Link = OrderLink(ev.OrderID)
	}
	return t
}

func errorToast(msg string, at time.Time) Toast {
	return Toast{
		ID:        uuid.NewString(),
		Kind:      ToastError,
		Message:   msg,
		DisplayMs: ToastDisplay.Milliseconds(),
		At:        at,
	}
}
