package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/BearBump/CourierBox/internal/models"
	"github.com/pkg/errors"
)

const courierOrdersPath = "/api/orders/courier/orders/"

// ListOrders returns every order visible to the courier.
func (c *Client) ListOrders(ctx context.Context) ([]models.Order, error) {
	return c.listOrders(ctx, courierOrdersPath)
}

func (c *Client) AssignedOrders(ctx context.Context) ([]models.Order, error) {
	return c.listOrders(ctx, courierOrdersPath+"assigned_orders/")
}

func (c *Client) CompletedOrders(ctx context.Context) ([]models.Order, error) {
	return c.listOrders(ctx, courierOrdersPath+"completed_orders/")
}

func (c *Client) GetOrder(ctx context.Context, id int64) (models.Order, error) {
	u, err := c.endpoint(orderPath(id, ""), nil)
	if err != nil {
		return models.Order{}, err
	}
	var o models.Order
	ok, err := c.do(ctx, request{method: http.MethodGet, url: u, auth: true}, &o)
	if err != nil {
		return models.Order{}, err
	}
	if !ok {
		return models.Order{}, &TransportError{Op: "get order", Err: errors.New("empty body")}
	}
	return o, nil
}

// AssignOrder claims the order. The returned order is nil when the backend
// confirmed without a body.
func (c *Client) AssignOrder(ctx context.Context, id int64) (*models.Order, error) {
	return c.patchOrder(ctx, orderPath(id, "assign/"), nil)
}

func (c *Client) UnassignOrder(ctx context.Context, id int64) (*models.Order, error) {
	return c.patchOrder(ctx, orderPath(id, "unassign/"), nil)
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (*models.Order, error) {
	return c.patchOrder(ctx, orderPath(id, "update_status/"), map[string]string{"status": string(status)})
}

func (c *Client) patchOrder(ctx context.Context, path string, body any) (*models.Order, error) {
	u, err := c.endpoint(path, nil)
	if err != nil {
		return nil, err
	}
	var o models.Order
	ok, err := c.do(ctx, request{method: http.MethodPatch, url: u, body: body, auth: true}, &o)
	if err != nil {
		return nil, err
	}
	if !ok || o.ID == 0 {
		return nil, nil
	}
	return &o, nil
}

func (c *Client) listOrders(ctx context.Context, path string) ([]models.Order, error) {
	u, err := c.endpoint(path, nil)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if _, err := c.do(ctx, request{method: http.MethodGet, url: u, auth: true}, &raw); err != nil {
		return nil, err
	}
	return decodeOrderList(raw)
}

// decodeOrderList accepts both a bare array and a paginated {"results": [...]} envelope.
func decodeOrderList(raw json.RawMessage) ([]models.Order, error) {
	if len(raw) == 0 {
		return []models.Order{}, nil
	}
	var list []models.Order
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var env struct {
		Results []models.Order `json:"results"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &TransportError{Op: "decode orders", Err: err}
	}
	if env.Results == nil {
		return []models.Order{}, nil
	}
	return env.Results, nil
}

func orderPath(id int64, action string) string {
	return fmt.Sprintf("%s%d/%s", courierOrdersPath, id, action)
}
