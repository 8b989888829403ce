package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/CourierBox/internal/clock"
	"github.com/BearBump/CourierBox/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const clearAllParallelism = 4

var (
	ErrUnknownNotification = errors.New("notification not found")
	ErrNoBackend           = errors.New("inbox has no backend")
)

type InboxAPI interface {
	ListNotifications(ctx context.Context, maxPages int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id int64) error
	DeleteNotification(ctx context.Context, id int64) error
}

// Inbox is the session's notification list, newest first.
type Inbox struct {
	api      InboxAPI
	clock    clock.Clock
	maxPages int

	mu        sync.Mutex
	items     []models.Notification
	nextLocal int64
	// gen changes on Reset; a load started before it is stale.
	gen uint64
}

func NewInbox(api InboxAPI, c clock.Clock, maxPages int) *Inbox {
	if c == nil {
		c = clock.Real{}
	}
	return &Inbox{api: api, clock: c, maxPages: maxPages, nextLocal: -1}
}

// Load replaces the list with what the backend has.
func (in *Inbox) Load(ctx context.Context) error {
	if in.api == nil {
		return ErrNoBackend
	}
	in.mu.Lock()
	gen := in.gen
	in.mu.Unlock()

	list, err := in.api.ListNotifications(ctx, in.maxPages)
	if err != nil {
		return errors.Wrap(err, "list notifications")
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if gen != in.gen {
		slog.Info("stale notification list dropped")
		return nil
	}
	in.items = list
	return nil
}

// Append records a pushed event as unread. An event whose id is already in
// the list is not added again.
func (in *Inbox) Append(ev models.ChannelEvent) (models.Notification, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	id := ev.ID
	if id > 0 {
		for _, n := range in.items {
			if n.ID == id {
				return n, false
			}
		}
	} else {
		id = in.nextLocal
		in.nextLocal--
	}

	n := models.Notification{
		ID:        id,
		Title:     ev.Title,
		Message:   ev.Message,
		CreatedAt: in.clock.Now().UTC().Format(time.RFC3339),
	}
	if ev.OrderID > 0 {
		n.Order = &models.NotificationOrderRef{ID: ev.OrderID, Status: models.OrderStatus(ev.Status)}
	}
	in.items = append([]models.Notification{n}, in.items...)
	return n, true
}

func (in *Inbox) List() []models.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]models.Notification(nil), in.items...)
}

func (in *Inbox) UnreadCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := 0
	for _, it := range in.items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

// MarkRead marks one notification read; local ones never reach the backend.
func (in *Inbox) MarkRead(ctx context.Context, id int64) error {
	if _, ok := in.find(id); !ok {
		return ErrUnknownNotification
	}
	if id > 0 {
		if in.api == nil {
			return ErrNoBackend
		}
		if err := in.api.MarkNotificationRead(ctx, id); err != nil {
			return errors.Wrap(err, "mark notification read")
		}
	}
	in.mu.Lock()
	for i := range in.items {
		if in.items[i].ID == id {
			in.items[i].IsRead = true
		}
	}
	in.mu.Unlock()
	return nil
}

func (in *Inbox) Delete(ctx context.Context, id int64) error {
	if _, ok := in.find(id); !ok {
		return ErrUnknownNotification
	}
	if id > 0 {
		if in.api == nil {
			return ErrNoBackend
		}
		if err := in.api.DeleteNotification(ctx, id); err != nil {
			return errors.Wrap(err, "delete notification")
		}
	}
	in.remove(map[int64]struct{}{id: {}})
	return nil
}

// ClearAll deletes everything. Notifications the backend refused to delete stay.
func (in *Inbox) ClearAll(ctx context.Context) error {
	items := in.List()
	if in.api == nil {
		for _, n := range items {
			if n.ID > 0 {
				return ErrNoBackend
			}
		}
	}

	var (
		mu      sync.Mutex
		deleted = make(map[int64]struct{}, len(items))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(clearAllParallelism)
	for _, n := range items {
		id := n.ID
		if id < 0 {
			mu.Lock()
			deleted[id] = struct{}{}
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			if err := in.api.DeleteNotification(gctx, id); err != nil {
				return errors.Wrapf(err, "delete notification %d", id)
			}
			mu.Lock()
			deleted[id] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	in.remove(deleted)
	return err
}

func (in *Inbox) Reset() {
	in.mu.Lock()
	in.items = nil
	in.nextLocal = -1
	in.gen++
	in.mu.Unlock()
}

func (in *Inbox) find(id int64) (models.Notification, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, n := range in.items {
		if n.ID == id {
			return n, true
		}
	}
	return models.Notification{}, false
}

func (in *Inbox) remove(ids map[int64]struct{}) {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := in.items[:0:0]
	for _, n := range in.items {
		if _, gone := ids[n.ID]; !gone {
			out = append(out, n)
		}
	}
	in.items = out
}
