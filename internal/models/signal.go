package models

// Intent is what the alert wants done with the symbol's position.
type Intent string

const (
	IntentOpen         Intent = "open"
	IntentClose        Intent = "close"
	IntentClosePartial Intent = "close_partial"
)

// Direction uses the broker's vocabulary (BUY/SELL) end to end.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Opposite returns the offsetting direction.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}

// Signal is one parsed inbound trade instruction. Immutable after parsing;
// all validity checks happen before any broker call.
type Signal struct {
	Symbol     string
	Intent     Intent
	Direction  Direction // required for open, empty otherwise
	Size       float64   // absolute for open, ratio in (0,1) for close_partial; 0 = unset
	StopLoss   float64   // 0 = unset
	TakeProfit float64   // 0 = unset
	SignalID   string    // empty = never deduplicated
}
