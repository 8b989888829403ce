package models

type NotificationOrderRef struct {
	ID      int64       `json:"id"`
	Service FlexString  `json:"service"`
	Status  OrderStatus `json:"status"`
}

type Notification struct {
	ID        int64                 `json:"id"`
	Title     string                `json:"title"`
	Message   string                `json:"message"`
	Type      string                `json:"type"`
	Order     *NotificationOrderRef `json:"order"`
	CreatedAt string                `json:"created_at"`
	IsRead    bool                  `json:"is_read"`
}

// Local notifications (pushed over the channel without a server id) carry a negative ID.
func (n Notification) IsLocal() bool {
	return n.ID < 0
}

type NotificationPage struct {
	Count    int            `json:"count"`
	Next     *string        `json:"next"`
	Previous *string        `json:"previous"`
	Results  []Notification `json:"results"`
}

// ChannelEvent is one push frame from the notification socket.
type ChannelEvent struct {
	ID      int64  `json:"id,omitempty"`
	OrderID int64  `json:"orderId,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}
