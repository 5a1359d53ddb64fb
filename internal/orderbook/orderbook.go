package orderbook

import (
	"sort"
	"strconv"
)

// Side is the taker side an execution consumes liquidity from.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Level is one price level of an order book.
type Level struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Notional returns the quote-currency value resting at this level.
func (l Level) Notional() float64 {
	return l.Price * l.Size
}

// Snapshot is a canonical order book: asks ascending, bids descending.
// An empty snapshot is valid and means "depth unknown".
type Snapshot struct {
	Asks []Level `json:"asks"`
	Bids []Level `json:"bids"`
}

// Empty reports whether the snapshot carries no depth at all.
func (s Snapshot) Empty() bool {
	return len(s.Asks) == 0 && len(s.Bids) == 0
}

// Levels returns the side of the book a taker order of the given side
// consumes: asks for buys, bids for sells.
func (s Snapshot) Levels(side Side) []Level {
	if side == SideBuy {
		return s.Asks
	}
	return s.Bids
}

// Best returns the best price on the consumed side, if present.
func (s Snapshot) Best(side Side) (float64, bool) {
	levels := s.Levels(side)
	if len(levels) == 0 {
		return 0, false
	}
	return levels[0].Price, true
}

// Normalize converts an arbitrary exchange order book payload into a
// canonical Snapshot. It tolerates malformed input and never fails:
// unrecognized shapes map to an empty snapshot. Supported shapes are the
// canonical Snapshot itself, {"asks":[...],"bids":[...]} maps with levels as
// {"price","size"} objects or [price, size] pairs, the Upbit-style
// {"orderbook_units":[{"ask_price","ask_size","bid_price","bid_size"}]}
// layout, and a single-element list wrapping any of the above.
func Normalize(raw interface{}) Snapshot {
	if raw == nil {
		return Snapshot{}
	}

	switch v := raw.(type) {
	case Snapshot:
		return sorted(v)
	case *Snapshot:
		if v == nil {
			return Snapshot{}
		}
		return sorted(*v)
	case []interface{}:
		if len(v) == 0 {
			return Snapshot{}
		}
		return Normalize(v[0])
	case map[string]interface{}:
		if units, ok := v["orderbook_units"].([]interface{}); ok {
			return normalizeUnits(units)
		}
		if v["asks"] != nil || v["bids"] != nil {
			return sorted(Snapshot{
				Asks: normalizeLevels(v["asks"]),
				Bids: normalizeLevels(v["bids"]),
			})
		}
	}
	return Snapshot{}
}

func normalizeUnits(units []interface{}) Snapshot {
	var snap Snapshot
	for _, u := range units {
		m, ok := u.(map[string]interface{})
		if !ok {
			continue
		}
		if p, okP := toFloat(m["ask_price"]); okP && p > 0 {
			if s, okS := toFloat(m["ask_size"]); okS && s >= 0 {
				snap.Asks = append(snap.Asks, Level{Price: p, Size: s})
			}
		}
		if p, okP := toFloat(m["bid_price"]); okP && p > 0 {
			if s, okS := toFloat(m["bid_size"]); okS && s >= 0 {
				snap.Bids = append(snap.Bids, Level{Price: p, Size: s})
			}
		}
	}
	return sorted(snap)
}

func normalizeLevels(raw interface{}) []Level {
	entries, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	var levels []Level
	for _, e := range entries {
		var price, size float64
		var okP, okS bool
		switch entry := e.(type) {
		case map[string]interface{}:
			price, okP = toFloat(entry["price"])
			size, okS = toFloat(entry["size"])
		case []interface{}:
			if len(entry) >= 2 {
				price, okP = toFloat(entry[0])
				size, okS = toFloat(entry[1])
			}
		}
		if okP && okS && price > 0 && size >= 0 {
			levels = append(levels, Level{Price: price, Size: size})
		}
	}
	return levels
}

func sorted(s Snapshot) Snapshot {
	asks := append([]Level(nil), s.Asks...)
	bids := append([]Level(nil), s.Bids...)
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	return Snapshot{Asks: asks, Bids: bids}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}
