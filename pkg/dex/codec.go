package dex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/clearport/dex/pkg/dex/book"
	"github.com/clearport/dex/pkg/storage"
)

// Conversions between domain types and their stored records. Amounts
// travel as decimal strings to keep full 256-bit precision in JSON.

func amountFromDec(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("bad amount %q: %w", s, err)
	}
	return v, nil
}

func orderToRecord(o *book.Order) storage.OrderRecord {
	return storage.OrderRecord{
		ID:        o.ID,
		Trader:    o.Trader.Hex(),
		Symbol:    o.Symbol,
		Side:      int8(o.Side),
		Price:     o.Price.Dec(),
		Amount:    o.Amount.Dec(),
		Filled:    o.Filled.Dec(),
		CreatedAt: o.CreatedAt,
	}
}

func orderFromRecord(rec storage.OrderRecord) (*book.Order, error) {
	price, err := amountFromDec(rec.Price)
	if err != nil {
		return nil, err
	}
	amount, err := amountFromDec(rec.Amount)
	if err != nil {
		return nil, err
	}
	filled, err := amountFromDec(rec.Filled)
	if err != nil {
		return nil, err
	}
	return &book.Order{
		ID:        rec.ID,
		Trader:    common.HexToAddress(rec.Trader),
		Symbol:    rec.Symbol,
		Side:      book.Side(rec.Side),
		Price:     price,
		Amount:    amount,
		Filled:    filled,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func tradeToRecord(t *Trade) storage.TradeRecord {
	return storage.TradeRecord{
		ID:           t.ID,
		Symbol:       t.Symbol,
		Taker:        t.Taker.Hex(),
		Maker:        t.Maker.Hex(),
		MakerOrderID: t.MakerOrderID,
		Side:         int8(t.Side),
		Price:        t.Price.Dec(),
		Amount:       t.Amount.Dec(),
		Timestamp:    t.Timestamp,
	}
}

func tradeFromRecord(rec storage.TradeRecord) (*Trade, error) {
	price, err := amountFromDec(rec.Price)
	if err != nil {
		return nil, err
	}
	amount, err := amountFromDec(rec.Amount)
	if err != nil {
		return nil, err
	}
	return &Trade{
		ID:           rec.ID,
		Symbol:       rec.Symbol,
		Taker:        common.HexToAddress(rec.Taker),
		Maker:        common.HexToAddress(rec.Maker),
		MakerOrderID: rec.MakerOrderID,
		Side:         book.Side(rec.Side),
		Price:        price,
		Amount:       amount,
		Timestamp:    rec.Timestamp,
	}, nil
}
