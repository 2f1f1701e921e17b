package order

// Well-known order statuses. The set is open; the store may hold others.
const (
	StatusPending   = "Pending"
	StatusShipped   = "Shipped"
	StatusDelivered = "Delivered"
)

// Order is a customer order as stored in the remote orders collection.
type Order struct {
	OrderID     string  `json:"orderId"`
	OrderStatus string  `json:"orderStatus"`
	TotalAmount float64 `json:"totalAmount"`
}

// RecordKey returns the record store key of the order.
func (o Order) RecordKey() string {
	return o.OrderID
}

// WithRecordKey returns a copy of the order carrying the given key.
func (o Order) WithRecordKey(key string) Order {
	o.OrderID = key
	return o
}
