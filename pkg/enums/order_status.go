package enums

// OrderStatus is the lifecycle state of a placed order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// ParseOrderStatus validates a raw status string against the known set.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	status := OrderStatus(value)
	_, ok := orderStatusTransitions[status]
	return status, ok
}

// CanTransition reports whether the status machine permits moving from one
// status to another. Statuses never move backward.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderStatusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	return len(orderStatusTransitions[s]) == 0
}
