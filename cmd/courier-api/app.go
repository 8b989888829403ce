package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	courierapi "github.com/BearBump/CourierBox/internal/api/courier_api"
	"github.com/BearBump/CourierBox/internal/services/notifications"
	"github.com/BearBump/CourierBox/internal/services/orders"
	"github.com/BearBump/CourierBox/internal/session"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type courierAPIOpts struct {
	httpAddr    string
	swaggerPath string

	onListen func(httpAddr string)
}

func runCourierAPI(ctx context.Context, opts courierAPIOpts, api *courierapi.CourierAPI, hub *courierapi.EventHub) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	hub.Start()

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))
	api.Routes(r)

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		// SSE-стримы держат соединения, закрываем их до Shutdown
		hub.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("courier API listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}

type channelBinder interface {
	OnSession(c session.Credentials, ok bool)
}

type cacheForgetter interface {
	Forget(ctx context.Context, courier string)
}

// onSessionChange keeps per-courier state in step with the signed-in courier:
// a different courier gets a clean workspace and an emptied, then reloaded,
// inbox, and the previous one's cached dashboard is dropped.
func onSessionChange(ws *orders.Workspace, inbox *notifications.Inbox, ch channelBinder, dash cacheForgetter) session.Listener {
	var (
		mu      sync.Mutex
		current string
	)
	return func(c session.Credentials, ok bool) {
		who := ""
		if ok {
			who = c.Email
			if who == "" {
				who = c.UserID
			}
		}
		mu.Lock()
		prev := current
		changed := who != current
		current = who
		mu.Unlock()

		if changed {
			ws.Reset()
			// чужие уведомления не должны дожить до загрузки нового списка
			inbox.Reset()
			if dash != nil && prev != "" {
				dash.Forget(context.Background(), prev)
			}
		}
		if ch != nil {
			ch.OnSession(c, ok)
		}
		if ok && changed {
			slog.Info("courier session bound", "courier", who)
			go func() {
				if err := inbox.Load(context.Background()); err != nil {
					slog.Warn("initial inbox load failed", "error", err.Error())
				}
			}()
		}
	}
}
