package models

import "time"

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

type OrderStatus string

const (
	OrderFilled   OrderStatus = "filled"
	OrderRejected OrderStatus = "rejected"
)

// Rejection reasons recorded on rejected orders.
const (
	ReasonKillSwitchActive  = "kill_switch_active"
	ReasonZeroSize          = "zero_size"
	ReasonBackendSubmission = "backend_submission_error"
	ReasonInsufficientFunds = "insufficient_funds"
)

// Order is an immutable record of one submission attempt and its outcome.
type Order struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Side      OrderSide   `json:"side"`
	Quantity  float64     `json:"quantity"`
	Price     float64     `json:"price"`
	Status    OrderStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Position is a held quantity with its volume-weighted average entry.
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
}

// LedgerSnapshot is the full persisted state of the paper exchange.
type LedgerSnapshot struct {
	Cash      float64             `json:"cash"`
	Positions map[string]Position `json:"positions"`
	Orders    []Order             `json:"orders"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Portfolio is the read model served by the control API.
type Portfolio struct {
	Cash          float64             `json:"cash"`
	Positions     map[string]Position `json:"positions"`
	Equity        float64             `json:"equity"`
	UnrealizedPnL float64             `json:"unrealized_pnl"`
}
