// Package dashboard serves the courier's statistics and profile, read through a cache.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BearBump/CourierBox/internal/cache"
	"github.com/BearBump/CourierBox/internal/models"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidProfile = errors.New("invalid profile update")

const invalidateTimeout = time.Second

type API interface {
	Statistics(ctx context.Context) (models.Statistics, error)
	GetProfile(ctx context.Context) (models.Profile, error)
	UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (models.Profile, error)
}

type Overview struct {
	Statistics models.Statistics `json:"statistics"`
	Profile    models.Profile    `json:"profile"`
}

type Service struct {
	api     API
	cache   cache.BytesCache
	ttl     time.Duration
	courier func() string
}

// New: a nil cache or a zero ttl turns caching off.
func New(api API, c cache.BytesCache, ttl time.Duration, courier func() string) *Service {
	if courier == nil {
		courier = func() string { return "" }
	}
	return &Service{api: api, cache: c, ttl: ttl, courier: courier}
}

func (s *Service) Statistics(ctx context.Context) (models.Statistics, error) {
	var st models.Statistics
	key := s.key("statistics")
	if s.lookup(ctx, key, &st) {
		return st, nil
	}
	st, err := s.api.Statistics(ctx)
	if err != nil {
		return models.Statistics{}, errors.Wrap(err, "courier statistics")
	}
	s.store(ctx, key, st)
	return st, nil
}

func (s *Service) Profile(ctx context.Context) (models.Profile, error) {
	var p models.Profile
	key := s.key("profile")
	if s.lookup(ctx, key, &p) {
		return p, nil
	}
	p, err := s.api.GetProfile(ctx)
	if err != nil {
		return models.Profile{}, errors.Wrap(err, "courier profile")
	}
	s.store(ctx, key, p)
	return p, nil
}

// Overview loads statistics and profile concurrently.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := s.Statistics(gctx)
		out.Statistics = st
		return err
	})
	g.Go(func() error {
		p, err := s.Profile(gctx)
		out.Profile = p
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}
	return out, nil
}

// UpdateProfile saves the changes and overwrites the cached profile with the answer.
func (s *Service) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (models.Profile, error) {
	if upd.FirstName == nil && upd.LastName == nil && upd.Phone == nil {
		return models.Profile{}, errors.Wrap(ErrInvalidProfile, "nothing to update")
	}
	for name, v := range map[string]*string{"first_name": upd.FirstName, "last_name": upd.LastName} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return models.Profile{}, errors.Wrapf(ErrInvalidProfile, "%s must not be empty", name)
		}
	}
	p, err := s.api.UpdateProfile(ctx, upd)
	if err != nil {
		return models.Profile{}, errors.Wrap(err, "update profile")
	}
	s.store(ctx, s.key("profile"), p)
	return p, nil
}

// Forget drops a courier's cached entries once they are no longer signed in.
func (s *Service) Forget(ctx context.Context, courier string) {
	if !s.enabled() || courier == "" {
		return
	}
	keys := []string{cacheKey(courier, "statistics"), cacheKey(courier, "profile")}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		slog.Warn("dashboard cache delete failed", "courier", courier, "error", err.Error())
	}
}

// Record drops the courier's cached statistics after an order action went
// through, so the next read shows the new counts. It never blocks the action.
func (s *Service) Record(ctx context.Context, rec models.ActionRecord) {
	if !rec.OK || !s.enabled() {
		return
	}
	who := rec.Courier
	if who == "" {
		who = s.courier()
	}
	if who == "" {
		return
	}
	key := cacheKey(who, "statistics")
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
		defer cancel()
		if err := s.cache.Delete(ctx, key); err != nil {
			slog.Warn("dashboard statistics invalidation failed", "key", key, "error", err.Error())
		}
	}()
}

func (s *Service) enabled() bool {
	return s.cache != nil && s.ttl > 0
}

func (s *Service) key(part string) string {
	who := s.courier()
	if who == "" {
		return ""
	}
	return cacheKey(who, part)
}

func cacheKey(courier, part string) string {
	return fmt.Sprintf("dashboard:%s:%s", courier, part)
}

func (s *Service) lookup(ctx context.Context, key string, dst any) bool {
	if !s.enabled() || key == "" {
		return false
	}
	b, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("dashboard cache get failed", "key", key, "error", err.Error())
		return false
	}
	if !ok {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}

// store is best effort; a failed write only costs a backend call later.
func (s *Service) store(ctx context.Context, key string, v any) {
	if !s.enabled() || key == "" {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
		slog.Warn("dashboard cache set failed", "key", key, "error", err.Error())
	}
}
