package wsnotify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/CourierBox/internal/services/notifications"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notifications/"
}

func serve(t *testing.T, h func(ws *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		h(ws, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDial_TokenInQueryAndFrames(t *testing.T) {
	gotToken := make(chan string, 1)
	srv := serve(t, func(ws *websocket.Conn, r *http.Request) {
		gotToken <- r.URL.Query().Get("token")
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"message":"hi"}`))
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		_, _, _ = ws.ReadMessage()
	})

	c, err := New(wsURL(srv)).Dial(context.Background(), "abc.def")
	require.NoError(t, err)
	require.Equal(t, "abc.def", <-gotToken)

	data, err := c.Read(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `{"message":"hi"}`, string(data))

	_, err = c.Read(context.Background())
	var ce *notifications.CloseError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, notifications.CloseNormal, ce.Code)
	require.NoError(t, c.Close(notifications.CloseNormal, "done"))
}

func TestRead_ServerErrorClose(t *testing.T) {
	srv := serve(t, func(ws *websocket.Conn, _ *http.Request) {
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "boom"))
		_, _, _ = ws.ReadMessage()
	})
	c, err := New(wsURL(srv)).Dial(context.Background(), "t")
	require.NoError(t, err)

	_, err = c.Read(context.Background())
	var ce *notifications.CloseError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, notifications.CloseServerError, ce.Code)
}

func TestRead_DroppedConnectionIsAbnormal(t *testing.T) {
	srv := serve(t, func(ws *websocket.Conn, _ *http.Request) {
		_ = ws.UnderlyingConn().Close()
	})
	c, err := New(wsURL(srv)).Dial(context.Background(), "t")
	require.NoError(t, err)

	_, err = c.Read(context.Background())
	var ce *notifications.CloseError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, notifications.CloseAbnormal, ce.Code)
}

func TestDial_HandshakeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(wsURL(srv)).Dial(context.Background(), "t")
	var hs *notifications.HandshakeError
	require.ErrorAs(t, err, &hs)
	require.Equal(t, http.StatusServiceUnavailable, hs.StatusCode)
}

func TestClose_SendsNormalClosure(t *testing.T) {
	code := make(chan int, 1)
	srv := serve(t, func(ws *websocket.Conn, _ *http.Request) {
		_, _, err := ws.ReadMessage()
		if ce, ok := err.(*websocket.CloseError); ok {
			code <- ce.Code
			return
		}
		code <- -1
	})
	c, err := New(wsURL(srv)).Dial(context.Background(), "t")
	require.NoError(t, err)
	require.NoError(t, c.Close(notifications.CloseNormal, "teardown"))
	require.NoError(t, c.Close(notifications.CloseNormal, "again"))

	select {
	case got := <-code:
		require.Equal(t, websocket.CloseNormalClosure, got)
	case <-time.After(2 * time.Second):
		t.Fatal("server saw no close frame")
	}
}

func TestRead_ContextCancelUnblocks(t *testing.T) {
	release := make(chan struct{})
	srv := serve(t, func(ws *websocket.Conn, _ *http.Request) {
		<-release
	})
	defer close(release)

	c, err := New(wsURL(srv)).Dial(context.Background(), "t")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = c.Read(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
