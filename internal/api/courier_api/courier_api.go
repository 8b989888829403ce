// Package courier_api is the courier's local REST surface over the order,
// dashboard and notification services.
package courier_api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/CourierBox/internal/models"
	"github.com/BearBump/CourierBox/internal/services/banner"
	"github.com/BearBump/CourierBox/internal/services/dashboard"
	"github.com/BearBump/CourierBox/internal/services/notifications"
	"github.com/BearBump/CourierBox/internal/services/orders"
	"github.com/BearBump/CourierBox/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type Session interface {
	Login(ctx context.Context, email, password string) (session.Credentials, error)
	Current() (session.Credentials, bool)
	Logout()
}

type ChannelStatus interface {
	Status() notifications.Status
}

type Deps struct {
	Workspace *orders.Workspace
	Dashboard *dashboard.Service
	Inbox     *notifications.Inbox
	Channel   ChannelStatus
	Session   Session
	Events    *EventHub
	Limiter   RateLimiter
	// MutationLimit is per courier per minute; 0 turns throttling off.
	MutationLimit int64
}

type CourierAPI struct {
	ws            *orders.Workspace
	dash          *dashboard.Service
	inbox         *notifications.Inbox
	channel       ChannelStatus
	session       Session
	events        *EventHub
	limiter       RateLimiter
	mutationLimit int64
}

func New(d Deps) *CourierAPI {
	if d.Events == nil {
		d.Events = NewEventHub()
	}
	return &CourierAPI{
		ws:            d.Workspace,
		dash:          d.Dashboard,
		inbox:         d.Inbox,
		channel:       d.Channel,
		session:       d.Session,
		events:        d.Events,
		limiter:       d.Limiter,
		mutationLimit: d.MutationLimit,
	}
}

func (a *CourierAPI) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/session", a.getSession)
		r.Post("/session", a.login)
		r.Delete("/session", a.logout)

		r.Get("/orders/available", a.loadAvailable)
		r.Get("/orders/available/visible", a.visibleAvailable)
		r.Get("/orders/active", a.loadActive)
		r.Get("/orders/history", a.loadHistory)
		r.Get("/orders/{id}", a.getOrder)
		r.Post("/orders/{id}/hide", a.hideOrder)

		r.Group(func(r chi.Router) {
			r.Use(a.throttle)
			r.Post("/orders/{id}/claim", a.claimOrder)
			r.Post("/orders/{id}/unclaim", a.unclaimOrder)
			r.Post("/orders/{id}/status", a.changeStatus)
			r.Patch("/profile", a.updateProfile)
		})

		r.Get("/banner", a.getBanner)
		r.Get("/statistics", a.getStatistics)
		r.Get("/profile", a.getProfile)
		r.Get("/overview", a.getOverview)

		r.Get("/notifications", a.listNotifications)
		r.Post("/notifications/{id}/read", a.markNotificationRead)
		r.Delete("/notifications/{id}", a.deleteNotification)
		r.Delete("/notifications", a.clearNotifications)

		r.Get("/channel", a.getChannel)
		r.Get("/events", a.events.ServeHTTP)
	})
}

func (a *CourierAPI) courier() string {
	if a.session == nil {
		return ""
	}
	c, ok := a.session.Current()
	if !ok {
		return ""
	}
	if c.Email != "" {
		return c.Email
	}
	return c.UserID
}

type sessionResponse struct {
	SignedIn  bool   `json:"signed_in"`
	Email     string `json:"email,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func toSessionResponse(c session.Credentials, ok bool) sessionResponse {
	if !ok {
		return sessionResponse{}
	}
	out := sessionResponse{SignedIn: true, Email: c.Email, UserID: c.UserID}
	if !c.ExpiresAt.IsZero() {
		out.ExpiresAt = c.ExpiresAt.Format(time.RFC3339)
	}
	return out
}

func (a *CourierAPI) getSession(w http.ResponseWriter, r *http.Request) {
	c, ok := a.session.Current()
	writeJSON(w, http.StatusOK, toSessionResponse(c, ok))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *CourierAPI) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	c, err := a.session.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(c, true))
}

func (a *CourierAPI) logout(w http.ResponseWriter, r *http.Request) {
	a.session.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func parseFilters(r *http.Request) (orders.Filters, error) {
	q := r.URL.Query()
	sort, err := orders.ParseSortKey(q.Get("sort"))
	if err != nil {
		return orders.Filters{}, err
	}
	return orders.Filters{
		Search: q.Get("search"),
		Status: models.OrderStatus(q.Get("status")),
		Sort:   sort,
	}, nil
}

func parseFloat(q string, name string) (float64, bool, error) {
	if q == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(q, 64)
	if err != nil {
		return 0, false, errors.Wrapf(errBadRequest, "invalid %s %q", name, q)
	}
	return v, true, nil
}

// loadAvailable mounts a fresh available view. Without lat/lon the default
// location is used, as when the courier shares none.
func (a *CourierAPI) loadAvailable(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	q := r.URL.Query()
	lat, hasLat, err := parseFloat(q.Get("lat"), "lat")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	lon, hasLon, err := parseFloat(q.Get("lon"), "lon")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	radius, _, err := parseFloat(q.Get("radius_km"), "radius_km")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	v := a.ws.ActivateAvailable()
	v.SetFilters(f)
	if hasLat && hasLon {
		err = v.LoadAvailable(r.Context(), models.GeoPoint{Lat: lat, Lon: lon}, radius)
	} else {
		err = v.LoadAround(r.Context())
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Snapshot())
}

// visibleAvailable re-filters the mounted list without asking the backend.
func (a *CourierAPI) visibleAvailable(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	v := a.ws.Available()
	v.SetFilters(f)
	writeJSON(w, http.StatusOK, v.Snapshot())
}

type listResponse struct {
	Orders []orders.Item `json:"orders"`
}

func (a *CourierAPI) loadActive(w http.ResponseWriter, r *http.Request) {
	v := a.ws.ActivateActive()
	if err := v.Load(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Orders: v.Orders()})
}

func (a *CourierAPI) loadHistory(w http.ResponseWriter, r *http.Request) {
	v := a.ws.ActivateHistory()
	if err := v.Load(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Orders: v.Orders()})
}

func (a *CourierAPI) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	it, err := a.ws.ActivateDetail().Load(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (a *CourierAPI) hideOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	v := a.ws.Available()
	v.Hide(id)
	writeJSON(w, http.StatusOK, v.Snapshot())
}

type actionResponse struct {
	orders.Result
	Banner *banner.Banner `json:"banner,omitempty"`
}

func (a *CourierAPI) writeResult(w http.ResponseWriter, res orders.Result) {
	if res.Err != nil {
		writeServiceError(w, res.Err)
		return
	}
	out := actionResponse{Result: res}
	if b, ok := a.ws.Board().Current(); ok {
		out.Banner = &b
	}
	writeJSON(w, http.StatusOK, out)
}

// claimOrder claims from the available list, or from the detail page when
// the order is the one shown there.
func (a *CourierAPI) claimOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	res := a.ws.Available().Claim(r.Context(), id)
	if errors.Is(res.Err, orders.ErrUnknownOrder) {
		if cur, ok := a.ws.Detail().Current(); ok && cur.ID == id {
			res = a.ws.Detail().Claim(r.Context(), id)
		}
	}
	a.writeResult(w, res)
}

func (a *CourierAPI) unclaimOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	a.writeResult(w, a.ws.Active().Unclaim(r.Context(), id))
}

type statusRequest struct {
	Status    models.OrderStatus `json:"status"`
	Direction string             `json:"direction"`
}

func (a *CourierAPI) changeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}
	v := a.ws.Active()
	switch req.Direction {
	case "", "advance":
		a.writeResult(w, v.AdvanceStatus(r.Context(), id, req.Status))
	case "revert":
		a.writeResult(w, v.RevertStatus(r.Context(), id, req.Status))
	default:
		writeError(w, http.StatusBadRequest, "direction must be advance or revert")
	}
}

func (a *CourierAPI) getBanner(w http.ResponseWriter, r *http.Request) {
	b, ok := a.ws.Board().Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *CourierAPI) getStatistics(w http.ResponseWriter, r *http.Request) {
	st, err := a.dash.Statistics(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *CourierAPI) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := a.dash.Profile(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *CourierAPI) getOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := a.dash.Overview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (a *CourierAPI) updateProfile(w http.ResponseWriter, r *http.Request) {
	var upd models.ProfileUpdate
	if err := decodeBody(r, &upd); err != nil {
		writeServiceError(w, err)
		return
	}
	p, err := a.dash.UpdateProfile(r.Context(), upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type notificationsResponse struct {
	Unread  int                   `json:"unread"`
	Results []models.Notification `json:"results"`
}

func (a *CourierAPI) notificationsSnapshot() notificationsResponse {
	return notificationsResponse{Unread: a.inbox.UnreadCount(), Results: a.inbox.List()}
}

// listNotifications returns the inbox; refresh=1 reloads it from the backend first.
func (a *CourierAPI) listNotifications(w http.ResponseWriter, r *http.Request) {
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if err := a.inbox.Load(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, a.notificationsSnapshot())
}

func (a *CourierAPI) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := a.inbox.MarkRead(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.notificationsSnapshot())
}

func (a *CourierAPI) deleteNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := a.inbox.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.notificationsSnapshot())
}

// clearNotifications deletes everything it can; what failed stays in the list.
func (a *CourierAPI) clearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := a.inbox.ClearAll(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.notificationsSnapshot())
}

func (a *CourierAPI) getChannel(w http.ResponseWriter, r *http.Request) {
	if a.channel == nil {
		writeJSON(w, http.StatusOK, notifications.Status{State: notifications.StateIdle})
		return
	}
	writeJSON(w, http.StatusOK, a.channel.Status())
}
