package storage

import "fmt"

// Key schema:
//
//   tok:<symbol>                        → TokenRecord
//   bal:<address>:<symbol>              → BalanceRecord
//   ord:<id, 20 digits>                 → OrderRecord
//   trade:<symbol>:<ts, 20>:<id, 20>    → TradeRecord
//   meta:next_order_id                  → uint64 (big endian)
//   meta:next_trade_id                  → uint64 (big endian)
//
// Order ids are globally monotonic, so iterating "ord:" yields orders in
// arrival order; re-inserting them in that order rebuilds every book with
// its price-time priority intact. Trade keys are zero-padded so a prefix
// scan walks them chronologically.

const (
	prefixToken   = "tok:"
	prefixBalance = "bal:"
	prefixOrder   = "ord:"
	prefixTrade   = "trade:"

	keyNextOrderID = "meta:next_order_id"
	keyNextTradeID = "meta:next_trade_id"
)

func tokenKey(symbol string) []byte {
	return []byte(prefixToken + symbol)
}

func balanceKey(trader, symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, trader, symbol))
}

func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

func tradeKey(symbol string, timestamp int64, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%020d", prefixTrade, symbol, timestamp, id))
}

func tradePrefix(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, symbol))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
