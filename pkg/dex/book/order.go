package book

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the side a taker order matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderStatus represents the lifecycle state of an order
type OrderStatus int8

const (
	OrderOpen OrderStatus = iota
	OrderPartiallyFilled
	OrderFilled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderPartiallyFilled:
		return "partially_filled"
	case OrderFilled:
		return "filled"
	default:
		return "unknown"
	}
}

// Order is a resting limit order. Orders are owned by the book that holds
// them; filled only ever increases and never exceeds the original amount.
// Fully filled orders stay in the book, the matching walk skips them.
type Order struct {
	ID     uint64
	Trader common.Address
	Symbol string
	Side   Side

	Price  *uint256.Int // quote units per base unit
	Amount *uint256.Int // original size
	Filled *uint256.Int // cumulative filled size

	CreatedAt int64 // Unix milliseconds
}

// Remaining returns the unfilled quantity (amount - filled).
func (o *Order) Remaining() *uint256.Int {
	return new(uint256.Int).Sub(o.Amount, o.Filled)
}

// IsFilled returns true once the order has no remaining quantity.
func (o *Order) IsFilled() bool {
	return o.Filled.Eq(o.Amount)
}

func (o *Order) Status() OrderStatus {
	switch {
	case o.Filled.IsZero():
		return OrderOpen
	case o.IsFilled():
		return OrderFilled
	default:
		return OrderPartiallyFilled
	}
}

// Clone returns a deep copy, detached from the book.
func (o *Order) Clone() *Order {
	return &Order{
		ID:        o.ID,
		Trader:    o.Trader,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Price:     o.Price.Clone(),
		Amount:    o.Amount.Clone(),
		Filled:    o.Filled.Clone(),
		CreatedAt: o.CreatedAt,
	}
}
