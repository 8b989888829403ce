package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BearBump/CourierBox/internal/models"
)

const notificationsPath = "/api/notifications/"

// ListNotifications walks the paginated envelope following "next" links, up to maxPages pages.
func (c *Client) ListNotifications(ctx context.Context, maxPages int) ([]models.Notification, error) {
	if maxPages <= 0 {
		maxPages = 10
	}
	u, err := c.endpoint(notificationsPath, nil)
	if err != nil {
		return nil, err
	}

	out := []models.Notification{}
	for page := 0; page < maxPages && u != ""; page++ {
		var p models.NotificationPage
		if _, err := c.do(ctx, request{method: http.MethodGet, url: u, auth: true}, &p); err != nil {
			return nil, err
		}
		out = append(out, p.Results...)
		u = ""
		if p.Next != nil {
			u = *p.Next
		}
	}
	return out, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	u, err := c.endpoint(fmt.Sprintf("%s%d/mark_as_read/", notificationsPath, id), nil)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{method: http.MethodPost, url: u, auth: true}, nil)
	return err
}

func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	u, err := c.endpoint(fmt.Sprintf("%s%d/", notificationsPath, id), nil)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, request{method: http.MethodDelete, url: u, auth: true}, nil)
	return err
}
