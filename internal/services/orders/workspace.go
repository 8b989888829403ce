package orders

import (
	"sync"
	"time"

	"github.com/BearBump/CourierBox/internal/services/banner"
)

type WorkspaceConfig struct {
	Available AvailableConfig
	ActiveTTL time.Duration
	// Email of the signed-in courier, used when a claim answer has no body.
	Email func() string
}

// Workspace owns the views of one signed-in courier. Activating a view closes
// its previous instance, so answers addressed to it are dropped.
type Workspace struct {
	api    Backend
	opts   Options
	cfg    WorkspaceConfig
	hidden *HiddenSet

	mu        sync.Mutex
	available *AvailableView
	active    *ActiveView
	history   *HistoryView
	detail    *DetailView
}

func NewWorkspace(api Backend, cfg WorkspaceConfig, opts Options) *Workspace {
	return &Workspace{
		api:    api,
		opts:   opts.withDefaults(),
		cfg:    cfg,
		hidden: NewHiddenSet(),
	}
}

func (w *Workspace) Board() *banner.Board { return w.opts.Board }

func (w *Workspace) Hidden() *HiddenSet { return w.hidden }

func (w *Workspace) ActivateAvailable() *AvailableView {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.available != nil {
		w.available.Close()
	}
	w.available = NewAvailableView(w.api, w.hidden, w.cfg.Available, w.opts)
	return w.available
}

// Available returns the mounted available view, mounting one if needed.
func (w *Workspace) Available() *AvailableView {
	w.mu.Lock()
	v := w.available
	w.mu.Unlock()
	if v == nil || v.Closed() {
		return w.ActivateAvailable()
	}
	return v
}

func (w *Workspace) ActivateActive() *ActiveView {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active != nil {
		w.active.Close()
	}
	w.active = NewActiveView(w.api, w.cfg.ActiveTTL, w.opts)
	return w.active
}

func (w *Workspace) Active() *ActiveView {
	w.mu.Lock()
	v := w.active
	w.mu.Unlock()
	if v == nil || v.Closed() {
		return w.ActivateActive()
	}
	return v
}

func (w *Workspace) ActivateHistory() *HistoryView {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.history != nil {
		w.history.Close()
	}
	w.history = NewHistoryView(w.api, w.opts)
	return w.history
}

func (w *Workspace) ActivateDetail() *DetailView {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.detail != nil {
		w.detail.Close()
	}
	w.detail = NewDetailView(w.api, w.cfg.Email, w.opts)
	return w.detail
}

func (w *Workspace) Detail() *DetailView {
	w.mu.Lock()
	v := w.detail
	w.mu.Unlock()
	if v == nil || v.Closed() {
		return w.ActivateDetail()
	}
	return v
}

// Reset closes every view and forgets hidden orders; used when the courier changes.
func (w *Workspace) Reset() {
	w.mu.Lock()
	if w.available != nil {
		w.available.Close()
	}
	if w.active != nil {
		w.active.Close()
	}
	if w.history != nil {
		w.history.Close()
	}
	if w.detail != nil {
		w.detail.Close()
	}
	w.available, w.active, w.history, w.detail = nil, nil, nil, nil
	w.mu.Unlock()
	w.hidden.Reset()
	w.opts.Board.Dismiss()
}
