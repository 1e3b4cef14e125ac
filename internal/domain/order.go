package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the reversing side, used when exiting a position.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderStatus tracks the order lifecycle. Transitions are monotonic:
// nothing moves out of filled, cancelled or failed.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusSubmitted       OrderStatus = "submitted"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusFailed          OrderStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusSubmitted, OrderStatusFilled, OrderStatusPartiallyFilled, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusSubmitted:       {OrderStatusFilled, OrderStatusPartiallyFilled, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPartiallyFilled: {OrderStatusFilled, OrderStatusCancelled},
}

// CanTransition reports whether moving from s to next is legal.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderRequest carries the parameters for a new venue order.
type OrderRequest struct {
	MarketID string
	TokenID  string
	Side     OrderSide
	Size     float64
	Price    float64
}

// Order represents a submitted venue order.
type Order struct {
	ID               string
	MarketID         string
	TokenID          string
	Side             OrderSide
	PriceTicks       int64 // fixed-point: price * 1e6
	SizeUnits        int64 // fixed-point: size  * 1e6
	FilledSize       float64
	AverageFillPrice float64
	Status           OrderStatus
	CreatedAt        time.Time
	FilledAt         *time.Time
}

// Price returns the float64 display price from fixed-point ticks.
func (o Order) Price() float64 {
	return float64(o.PriceTicks) / 1e6
}

// Size returns the float64 display size from fixed-point units.
func (o Order) Size() float64 {
	return float64(o.SizeUnits) / 1e6
}

// PriceToTicks converts a display price to fixed-point ticks.
func PriceToTicks(price float64) int64 {
	return int64(price*1e6 + 0.5)
}

// SizeToUnits converts a display size to fixed-point units.
func SizeToUnits(size float64) int64 {
	return int64(size*1e6 + 0.5)
}
