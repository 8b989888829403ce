package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/CourierBox/internal/broker/kafka"
	"github.com/BearBump/CourierBox/internal/models"
	"github.com/BearBump/CourierBox/internal/services/journal"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type journalOpts struct {
	httpAddr string

	topic         string
	consumerGroup string

	// ready reports whether storage answers; nil means always ready.
	ready func(ctx context.Context) error

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, h kafka.Handler) error
}

func runJournal(ctx context.Context, opts journalOpts, svc *journal.Service, consumer kafkaConsumer) error {
	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runJournalHTTP(ctx, lis, svc, opts.ready)
	}()

	consumerErr := make(chan error, 1)
	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		consumerErr <- consumer.Consume(ctx, svc.Handle)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	case err := <-consumerErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// без потребителя журнал бесполезен: выходим, чтобы нас перезапустили
		slog.Error("kafka consumer stopped", "error", err.Error())
		return errors.Wrap(err, "kafka consumer")
	}
}

func runJournalHTTP(ctx context.Context, lis net.Listener, svc *journal.Service, ready func(ctx context.Context) error) error {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"not ready"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/actions", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		orderID, err := queryInt(q.Get("order_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid order_id")
			return
		}
		listActions(w, r, svc, int64(orderID), q.Get("courier"))
	})
	r.Get("/orders/{id}/actions", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid order id")
			return
		}
		listActions(w, r, svc, id, r.URL.Query().Get("courier"))
	})

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("journal HTTP listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}

type actionsResponse struct {
	Actions []*models.ActionRecord `json:"actions"`
}

func listActions(w http.ResponseWriter, r *http.Request, svc *journal.Service, orderID int64, courier string) {
	q := r.URL.Query()
	limit, err := queryInt(q.Get("limit"))
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	list, err := svc.List(r.Context(), orderID, courier, limit, offset)
	if err != nil {
		slog.Error("list courier actions", "order_id", orderID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if list == nil {
		list = []*models.ActionRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(actionsResponse{Actions: list})
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
