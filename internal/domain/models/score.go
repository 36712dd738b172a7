package models

import "time"

// SignalAction is the scoring verdict for a symbol on one scan.
type SignalAction string

const (
	ActionBuy  SignalAction = "buy"
	ActionSell SignalAction = "sell"
	ActionHold SignalAction = "hold"
)

// CompositeScore is the weighted multi-factor score on a 0-100 scale.
// Components keeps each factor's raw contribution for audit. Degraded is
// set when any factor lacked enough history and contributed zero.
type CompositeScore struct {
	Symbol     string
	Timestamp  time.Time
	Value      float64
	Components map[string]float64
	Degraded   bool
}

// Signal is a scoring outcome routed to the execution gateway.
// Hold signals never reach the gateway.
type Signal struct {
	Symbol    string
	Action    SignalAction
	Score     CompositeScore
	Price     float64
	Timestamp time.Time
	Reason    string // "score", "stop_loss", "take_profit"
}
