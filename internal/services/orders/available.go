package orders

import (
	"context"
	"sync"
	"time"

	"github.com/BearBump/CourierBox/internal/geo"
	"github.com/BearBump/CourierBox/internal/models"
	"github.com/pkg/errors"
)

const (
	claimSuccessText = "Вы успешно откликнулись на заказ!"

	// DefaultRadiusKm is the radius of the list before the courier picks one.
	DefaultRadiusKm = 50.0
)

// DefaultCenter is used when the courier shares no location (Москва, центр).
var DefaultCenter = models.GeoPoint{Lat: 55.7558, Lon: 37.6173}

type LocationSource string

const (
	LocationProvided LocationSource = "provided"
	LocationDefault  LocationSource = "default"
)

// HiddenSet remembers orders the courier dismissed for the rest of the session.
type HiddenSet struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

func NewHiddenSet() *HiddenSet {
	return &HiddenSet{ids: make(map[int64]struct{})}
}

func (h *HiddenSet) Hide(id int64) {
	h.mu.Lock()
	h.ids[id] = struct{}{}
	h.mu.Unlock()
}

func (h *HiddenSet) IsHidden(id int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.ids[id]
	return ok
}

func (h *HiddenSet) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.ids)
}

func (h *HiddenSet) Reset() {
	h.mu.Lock()
	h.ids = make(map[int64]struct{})
	h.mu.Unlock()
}

type AvailableConfig struct {
	DefaultCenter   models.GeoPoint
	DefaultRadiusKm float64
	// DevMode keeps orders outside the radius in the list.
	DevMode    bool
	SuccessTTL time.Duration
	ErrorTTL   time.Duration
}

func (c AvailableConfig) withDefaults() AvailableConfig {
	if c.DefaultCenter == (models.GeoPoint{}) {
		c.DefaultCenter = DefaultCenter
	}
	if c.DefaultRadiusKm <= 0 {
		c.DefaultRadiusKm = DefaultRadiusKm
	}
	if c.SuccessTTL <= 0 {
		c.SuccessTTL = 2 * time.Second
	}
	if c.ErrorTTL <= 0 {
		c.ErrorTTL = 5 * time.Second
	}
	return c
}

// AvailableSnapshot is what the available list shows right now.
type AvailableSnapshot struct {
	Center   models.GeoPoint `json:"center"`
	Source   LocationSource  `json:"location_source"`
	RadiusKm float64         `json:"radius_km"`
	Filters  Filters         `json:"filters"`
	Orders   []Item          `json:"orders"`
	Total    int             `json:"total"`
	Hidden   int             `json:"hidden"`
}

// AvailableView lists unclaimed pending orders around the courier.
type AvailableView struct {
	core
	api    Backend
	hidden *HiddenSet
	cfg    AvailableConfig

	candidates []Item
	filters    Filters
	center     models.GeoPoint
	source     LocationSource
	radiusKm   float64
}

func NewAvailableView(api Backend, hidden *HiddenSet, cfg AvailableConfig, opts Options) *AvailableView {
	if hidden == nil {
		hidden = NewHiddenSet()
	}
	cfg = cfg.withDefaults()
	return &AvailableView{
		core:     newCore(opts),
		api:      api,
		hidden:   hidden,
		cfg:      cfg,
		filters:  DefaultFilters(),
		center:   cfg.DefaultCenter,
		source:   LocationDefault,
		radiusKm: cfg.DefaultRadiusKm,
	}
}

// LoadAvailable rebuilds the candidate list around center.
func (v *AvailableView) LoadAvailable(ctx context.Context, center models.GeoPoint, radiusKm float64) error {
	return v.load(ctx, center, LocationProvided, radiusKm)
}

// LoadAround uses the configured default location.
func (v *AvailableView) LoadAround(ctx context.Context) error {
	return v.load(ctx, v.cfg.DefaultCenter, LocationDefault, v.cfg.DefaultRadiusKm)
}

func (v *AvailableView) load(ctx context.Context, center models.GeoPoint, src LocationSource, radiusKm float64) error {
	if radiusKm <= 0 {
		radiusKm = v.cfg.DefaultRadiusKm
	}
	gen, err := v.startLoad()
	if err != nil {
		return err
	}

	list, err := v.api.ListOrders(ctx)
	if err != nil {
		v.applyLoad(gen, func() { v.candidates = nil })
		return errors.Wrap(err, "list orders")
	}

	candidates := make([]Item, 0, len(list))
	for _, o := range list {
		if o.Status != models.OrderStatusPending || !o.IsUnclaimed() {
			continue
		}
		it := newItem(o)
		if p, ok := o.Location(); ok {
			d := geo.HaversineKm(center, p)
			if !v.cfg.DevMode && d > radiusKm {
				continue
			}
			it.DistanceKm = &d
		}
		candidates = append(candidates, it)
	}

	if !v.applyLoad(gen, func() {
		v.candidates = candidates
		v.center = center
		v.source = src
		v.radiusKm = radiusKm
	}) {
		return ErrClosed
	}
	return nil
}

func (v *AvailableView) SetFilters(f Filters) {
	if f.Sort == "" {
		f.Sort = SortDateDesc
	}
	v.mu.Lock()
	v.filters = f
	v.mu.Unlock()
}

func (v *AvailableView) Orders() []Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	return applyFilters(v.candidates, v.filters, v.hidden.IsHidden)
}

func (v *AvailableView) Snapshot() AvailableSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	items := applyFilters(v.candidates, v.filters, v.hidden.IsHidden)
	return AvailableSnapshot{
		Center:   v.center,
		Source:   v.source,
		RadiusKm: v.radiusKm,
		Filters:  v.filters,
		Orders:   items,
		Total:    len(v.candidates),
		Hidden:   v.hidden.Len(),
	}
}

// Claim assigns the order to the courier; on success it leaves the list.
func (v *AvailableView) Claim(ctx context.Context, id int64) Result {
	return v.run(ctx, mutation{
		kind:    models.ActionClaim,
		orderID: id,
		validate: func() (models.OrderStatus, error) {
			i := indexOf(v.candidates, id)
			if i < 0 {
				return "", ErrUnknownOrder
			}
			return v.candidates[i].Status, nil
		},
		call: func(ctx context.Context) (*models.Order, error) {
			return v.api.AssignOrder(ctx, id)
		},
		onSuccess: func(*models.Order) {
			if i := indexOf(v.candidates, id); i >= 0 {
				v.candidates = removeAt(v.candidates, i)
			}
		},
		successText: claimSuccessText,
		successTTL:  v.cfg.SuccessTTL,
		errorTTL:    v.cfg.ErrorTTL,
	})
}

// Hide drops the order from this session's list without telling the backend.
func (v *AvailableView) Hide(id int64) {
	v.hidden.Hide(id)
}
