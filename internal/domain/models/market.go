package models

import "time"

// Candle represents one OHLCV bar as stored and scored.
type Candle struct {
	Exchange  string
	Symbol    string
	Timeframe string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Tick is a single trade/price update from the live stream.
type Tick struct {
	Symbol    string
	Price     float64
	Volume    float64
	Timestamp time.Time
}

// EdgeScore is the ML collaborator's directional estimate for a symbol.
type EdgeScore struct {
	Symbol    string
	Timestamp time.Time
	Horizon   string
	ProbaUp   float64 // probability of price going up
	Sigma     float64
}
