package courier_api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/BearBump/CourierBox/internal/integrations/backend"
	"github.com/BearBump/CourierBox/internal/services/dashboard"
	"github.com/BearBump/CourierBox/internal/services/notifications"
	"github.com/BearBump/CourierBox/internal/services/orders"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps service and backend errors to statuses. Backend
// messages are passed through; transport details stay in the log.
func writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, errBadRequest),
		orders.IsValidation(err),
		errors.Is(err, orders.ErrInvalidFilter),
		errors.Is(err, dashboard.ErrInvalidProfile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, notifications.ErrUnknownNotification):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orders.ErrActionPending), errors.Is(err, orders.ErrClosed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, backend.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "требуется авторизация")
	case errors.As(err, &apiErr):
		writeError(w, http.StatusBadGateway, backend.UserMessage(err))
	case errors.Is(err, backend.ErrTransport), errors.Is(err, notifications.ErrNoBackend):
		slog.Warn("backend unavailable", "error", err.Error())
		writeError(w, http.StatusBadGateway, backend.GenericErrorMessage)
	default:
		slog.Error("courier api", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Wrapf(errBadRequest, "invalid id %q", raw)
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrapf(errBadRequest, "decode body: %v", err)
	}
	return nil
}
