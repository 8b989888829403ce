package messages

import "time"

// CourierAction is published for every claim, unclaim and status move a courier makes.
type CourierAction struct {
	EventID string `json:"event_id"`
	Courier string `json:"courier"`
	Action  string `json:"action"`
	OrderID int64  `json:"order_id"`

	FromStatus string `json:"from_status,omitempty"`
	ToStatus   string `json:"to_status,omitempty"`

	OK    bool    `json:"ok"`
	Error *string `json:"error,omitempty"`

	At time.Time `json:"at"`
}
