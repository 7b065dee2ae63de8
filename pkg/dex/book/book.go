package book

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Book holds the resting orders for one (symbol, side), sorted from best
// executable price to worst: descending for buys, ascending for sells.
// Orders at the same price keep arrival order (FIFO).
//
// The book is not internally locked; the matching engine serializes all
// access behind its operation boundary.
type Book struct {
	symbol string
	side   Side
	orders []*Order // best price first
}

func New(symbol string, side Side) *Book {
	return &Book{symbol: symbol, side: side}
}

func (b *Book) Symbol() string { return b.symbol }
func (b *Book) Side() Side     { return b.side }
func (b *Book) Len() int       { return len(b.orders) }

// better reports whether price p has strictly better priority than q
// on this side of the book.
func (b *Book) better(p, q *uint256.Int) bool {
	if b.side == Buy {
		return p.Gt(q)
	}
	return p.Lt(q)
}

// Insert places the order at its priority position: scanning from the best
// end, it goes before the first resting order with a strictly worse price.
// Equal-priced orders that arrived earlier therefore keep priority.
func (b *Book) Insert(o *Order) {
	i := 0
	for i < len(b.orders) && !b.better(o.Price, b.orders[i].Price) {
		i++
	}
	b.orders = append(b.orders, nil)
	copy(b.orders[i+1:], b.orders[i:])
	b.orders[i] = o
}

// Best returns a copy of the head of the book, or nil if the book is empty.
func (b *Book) Best() *Order {
	if len(b.orders) == 0 {
		return nil
	}
	return b.orders[0].Clone()
}

// Orders returns a snapshot of the book in priority order. The copies are
// detached, mutating them does not touch the book.
func (b *Book) Orders() []*Order {
	out := make([]*Order, len(b.orders))
	for i, o := range b.orders {
		out[i] = o.Clone()
	}
	return out
}

// OrdersForTrader returns a snapshot of this trader's resting orders,
// in priority order.
func (b *Book) OrdersForTrader(trader common.Address) []*Order {
	var out []*Order
	for _, o := range b.orders {
		if o.Trader == trader {
			out = append(out, o.Clone())
		}
	}
	return out
}

// Get returns a copy of the order with the given id.
func (b *Book) Get(id uint64) (*Order, bool) {
	for _, o := range b.orders {
		if o.ID == id {
			return o.Clone(), true
		}
	}
	return nil, false
}

// Unfill subtracts qty from a resting order's filled quantity, undoing a
// fill whose settlement could not be made durable.
func (b *Book) Unfill(id uint64, qty *uint256.Int) bool {
	for _, o := range b.orders {
		if o.ID == id {
			o.Filled = new(uint256.Int).Sub(o.Filled, qty)
			return true
		}
	}
	return false
}

// Fill describes one matched quantity against a resting order.
type Fill struct {
	MakerOrderID uint64
	Maker        common.Address
	Price        *uint256.Int
	Qty          *uint256.Int
}

// Match walks the book from the best entry, filling up to amount against
// each resting order in priority order. Orders with zero remainder are
// skipped, never removed. For every fill the settle callback runs before
// the maker's filled quantity is advanced; if it returns an error all
// filled quantities advanced by this call are restored and the error is
// returned with no fills.
//
// The walk stops when amount is consumed or the book is exhausted; any
// unmatched remainder is simply not matched.
func (b *Book) Match(amount *uint256.Int, settle func(maker *Order, qty *uint256.Int) error) ([]Fill, error) {
	remaining := amount.Clone()

	var fills []Fill
	type undo struct {
		order *Order
		prev  *uint256.Int
	}
	var journal []undo

	for _, o := range b.orders {
		if remaining.IsZero() {
			break
		}
		rem := o.Remaining()
		if rem.IsZero() {
			continue
		}
		qty := rem
		if remaining.Lt(rem) {
			qty = remaining.Clone()
		}

		if err := settle(o, qty); err != nil {
			for _, u := range journal {
				u.order.Filled = u.prev
			}
			return nil, err
		}

		journal = append(journal, undo{order: o, prev: o.Filled.Clone()})
		o.Filled = new(uint256.Int).Add(o.Filled, qty)
		remaining = new(uint256.Int).Sub(remaining, qty)

		fills = append(fills, Fill{
			MakerOrderID: o.ID,
			Maker:        o.Trader,
			Price:        o.Price.Clone(),
			Qty:          qty.Clone(),
		})
	}

	return fills, nil
}
