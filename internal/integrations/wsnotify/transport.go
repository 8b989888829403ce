// Package wsnotify is the websocket transport of the notification channel.
package wsnotify

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/BearBump/CourierBox/internal/services/notifications"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const DefaultURL = "ws://127.0.0.1:8000/ws/notifications/"

const closeWriteTimeout = time.Second

type Transport struct {
	url    string
	dialer *websocket.Dialer
}

func New(wsURL string) *Transport {
	if wsURL == "" {
		wsURL = DefaultURL
	}
	return &Transport{
		url: wsURL,
		dialer: &websocket.Dialer{
			Proxy:           http.ProxyFromEnvironment,
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
		},
	}
}

// Dial opens the channel; the token travels in the query string.
func (t *Transport) Dial(ctx context.Context, token string) (notifications.Conn, error) {
	u, err := url.Parse(t.url)
	if err != nil {
		return nil, errors.Wrap(err, "parse notification url")
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	ws, resp, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, &notifications.HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, errors.Wrap(err, "dial notification channel")
	}
	return &conn{ws: ws}, nil
}

type conn struct {
	ws   *websocket.Conn
	once sync.Once
}

func (c *conn) Read(ctx context.Context) ([]byte, error) {
	// ReadMessage knows nothing about ctx; closing the socket unblocks it
	stop := context.AfterFunc(ctx, func() { _ = c.ws.Close() })
	defer stop()

	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return nil, &notifications.CloseError{Code: ce.Code, Reason: ce.Text}
			}
			return nil, &notifications.CloseError{Code: notifications.CloseAbnormal, Reason: err.Error()}
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		return data, nil
	}
}

func (c *conn) Close(code int, reason string) error {
	var err error
	c.once.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		werr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		cerr := c.ws.Close()
		switch {
		case werr != nil && !errors.Is(werr, websocket.ErrCloseSent):
			err = errors.Wrap(werr, "write close frame")
		case cerr != nil:
			err = errors.Wrap(cerr, "close socket")
		}
	})
	return err
}
