package models

// Requests for the operator control API. Defined in domain for consistency and reuse.

type ScoreRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"120" validate:"gte=30,lte=5000"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1m 5m 1h"`
}

type OrdersRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type RunJobRequest struct {
	Name string `param:"name" json:"name" validate:"required"`
}
