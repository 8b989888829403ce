package models

import "time"

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Statistics struct {
	TotalOrders     int        `json:"totalOrders"`
	CompletedOrders int        `json:"completedOrders"`
	CancelledOrders int        `json:"cancelledOrders"`
	Rating          FlexFloat  `json:"rating"`
	Earnings        FlexFloat  `json:"earnings"`
	OrdersByDay     []DayCount `json:"ordersByDay"`
}

type Profile struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	UserType  string `json:"user_type,omitempty"`
}

type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

type ActionKind string

const (
	ActionClaim   ActionKind = "claim"
	ActionUnclaim ActionKind = "unclaim"
	ActionAdvance ActionKind = "advance"
	ActionRevert  ActionKind = "revert"
)

// ActionRecord is one entry of the courier action journal.
type ActionRecord struct {
	ID         uint64      `json:"id"`
	EventID    string      `json:"event_id"`
	Courier    string      `json:"courier"`
	Action     ActionKind  `json:"action"`
	OrderID    int64       `json:"order_id"`
	FromStatus OrderStatus `json:"from_status,omitempty"`
	ToStatus   OrderStatus `json:"to_status,omitempty"`
	OK         bool        `json:"ok"`
	Error      *string     `json:"error,omitempty"`
	At         time.Time   `json:"at"`
	CreatedAt  time.Time   `json:"created_at"`
}
