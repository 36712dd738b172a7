package risk

// Sizer computes position sizes with the fractional Kelly criterion.
// Fraction scales the raw Kelly output down (full Kelly is too
// aggressive for live capital); MaxFraction caps the share of capital
// a single position may take regardless of how strong the edge looks.
type Sizer struct {
	Fraction    float64
	MaxFraction float64
}

// NewSizer creates a Sizer with the given Kelly fraction and cap.
func NewSizer(fraction, maxFraction float64) *Sizer {
	return &Sizer{Fraction: fraction, MaxFraction: maxFraction}
}

// Size returns the capital to allocate for a bet with win probability p
// and win/loss payoff ratio b. The raw Kelly fraction is
// f = p - (1-p)/b, scaled by Fraction and clamped to MaxFraction.
// No edge means no bet: p <= 0.5, non-positive b, or f <= 0 all size to
// zero. Negative capital also sizes to zero.
func (s *Sizer) Size(p, b, capital float64) float64 {
	if p <= 0.5 || b <= 0 || capital <= 0 {
		return 0
	}
	f := p - (1-p)/b
	if f <= 0 {
		return 0
	}
	f *= s.Fraction
	if f > s.MaxFraction {
		f = s.MaxFraction
	}
	return capital * f
}

// Quantity converts a Size allocation into a base-asset quantity at the
// given price. Zero price yields zero quantity.
func (s *Sizer) Quantity(p, b, capital, price float64) float64 {
	if price <= 0 {
		return 0
	}
	return s.Size(p, b, capital) / price
}
