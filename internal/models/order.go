package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

type OrderStatus string

// Статусы заказа в том виде, в каком их отдаёт бэкенд.
const (
	OrderStatusPending                 OrderStatus = "pending"
	OrderStatusAwaitingCourier         OrderStatus = "awaiting_courier" // legacy, встречается в старых заказах
	OrderStatusCourierAssigned         OrderStatus = "courier_assigned"
	OrderStatusCourierOnTheWay         OrderStatus = "courier_on_the_way"
	OrderStatusAtLocation              OrderStatus = "at_location"
	OrderStatusCourierOnTheWayToMaster OrderStatus = "courier_on_the_way_to_master"
	OrderStatusInProgress              OrderStatus = "in_progress"
	OrderStatusCompleted               OrderStatus = "completed"
	OrderStatusCancelled               OrderStatus = "cancelled"
	OrderStatusReturn                  OrderStatus = "return"
)

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type ServiceDetails struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       FlexFloat `json:"price"`
}

type Order struct {
	ID              int64           `json:"id"`
	ServiceDetails  *ServiceDetails `json:"service_details,omitempty"`
	Status          OrderStatus     `json:"status"`
	City            string          `json:"city"`
	Street          string          `json:"street"`
	BuildingNum     FlexString      `json:"building_num"`
	CreatedAt       string          `json:"created_at"`
	StatusChangedAt string          `json:"status_changed_at,omitempty"`
	Latitude        FlexFloat       `json:"latitude"`
	Longitude       FlexFloat       `json:"longitude"`
	Courier         *FlexString     `json:"courier"`
}

// Location is present only when both coordinates are.
func (o Order) Location() (GeoPoint, bool) {
	if !o.Latitude.Valid || !o.Longitude.Valid {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: o.Latitude.Value, Lon: o.Longitude.Value}, true
}

func (o Order) IsUnclaimed() bool {
	return o.Courier == nil || *o.Courier == ""
}

func (o Order) CreatedTime() (time.Time, bool) {
	return ParseTimestamp(o.CreatedAt)
}

func (o Order) StatusChangedTime() (time.Time, bool) {
	return ParseTimestamp(o.StatusChangedAt)
}

// ParseTimestamp understands the ISO-8601 variants the backend emits.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FlexFloat accepts a number, a numeric string, "" or null.
type FlexFloat struct {
	Value float64
	Valid bool
}

func NewFlexFloat(v float64) FlexFloat {
	return FlexFloat{Value: v, Valid: true}
}

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = FlexFloat{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			// нечисловая строка = координаты нет
			return nil
		}
		*f = FlexFloat{Value: v, Valid: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = FlexFloat{Value: v, Valid: true}
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// FlexString accepts a string, a number or an object carrying "id"/"email".
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	switch b[0] {
	case '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
	case '{':
		var v struct {
			ID    json.Number `json:"id"`
			Email string      `json:"email"`
		}
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		if v.Email != "" {
			*s = FlexString(v.Email)
		} else {
			*s = FlexString(v.ID.String())
		}
	default:
		*s = FlexString(string(b))
	}
	return nil
}
