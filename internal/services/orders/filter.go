package orders

import (
	"sort"
	"strings"

	"github.com/BearBump/CourierBox/internal/models"
	"github.com/pkg/errors"
)

type SortKey string

const (
	SortDateAsc      SortKey = "date_asc"
	SortDateDesc     SortKey = "date_desc"
	SortDistanceAsc  SortKey = "distance_asc"
	SortDistanceDesc SortKey = "distance_desc"
)

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(s); k {
	case "":
		return SortDateDesc, nil
	case SortDateAsc, SortDateDesc, SortDistanceAsc, SortDistanceDesc:
		return k, nil
	}
	return "", errors.Wrapf(ErrInvalidFilter, "unknown sort %q", s)
}

var ErrInvalidFilter = errors.New("invalid filter")

type Filters struct {
	Search string             `json:"search"`
	Status models.OrderStatus `json:"status"`
	Sort   SortKey            `json:"sort"`
}

// DefaultFilters: newest first, no search, any status.
func DefaultFilters() Filters {
	return Filters{Sort: SortDateDesc}
}

// applyFilters returns a new slice; items is left untouched.
func applyFilters(items []Item, f Filters, hidden func(int64) bool) []Item {
	q := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if hidden != nil && hidden(it.ID) {
			continue
		}
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		if q != "" && !matchesSearch(it.Order, q) {
			continue
		}
		out = append(out, it)
	}
	sortItems(out, f.Sort)
	return out
}

func matchesSearch(o models.Order, q string) bool {
	for _, field := range []string{o.City, o.Street, string(o.BuildingNum)} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// sortItems is stable; items without a distance (or a date) always go last.
func sortItems(items []Item, key SortKey) {
	switch key {
	case SortDistanceAsc, SortDistanceDesc:
		desc := key == SortDistanceDesc
		sort.SliceStable(items, func(i, j int) bool {
			a, b := items[i].DistanceKm, items[j].DistanceKm
			if a == nil || b == nil {
				return a != nil && b == nil
			}
			if desc {
				return *a > *b
			}
			return *a < *b
		})
	default:
		desc := key != SortDateAsc
		sort.SliceStable(items, func(i, j int) bool {
			a, aok := items[i].CreatedTime()
			b, bok := items[j].CreatedTime()
			if !aok || !bok {
				return aok && !bok
			}
			if desc {
				return a.After(b)
			}
			return a.Before(b)
		})
	}
}
