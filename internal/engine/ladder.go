package engine

// minTriggerPrice floors computed buy prices so that large tier counts with a
// wide interval never produce a non-positive trigger.
const minTriggerPrice = 0.01

// Ladder computes every tier's trigger prices from one reference price. It is
// a pure value type: all methods are side-effect free.
type Ladder struct {
	BuyIntervalRate float64 // fractional price drop between adjacent tiers
	SellTargetRate  float64 // fractional gain target above a tier's buy price
	TotalTiers      int
}

// BuyPrice returns the buy trigger for the given tier. Tier 1 triggers at the
// reference price itself; each deeper tier triggers one interval lower.
func (l Ladder) BuyPrice(refPrice float64, tier int) float64 {
	if tier <= 1 {
		return refPrice
	}
	p := refPrice * (1 - float64(tier-1)*l.BuyIntervalRate)
	if p < minTriggerPrice {
		p = minTriggerPrice
	}
	return p
}

// SellPrice returns the sell trigger for the given tier: its buy trigger plus
// the configured gain target.
func (l Ladder) SellPrice(refPrice float64, tier int) float64 {
	return l.BuyPrice(refPrice, tier) * (1 + l.SellTargetRate)
}

// CurrentTier maps an observed price to the deepest tier whose buy trigger it
// crosses, clamped to [1, TotalTiers]. An unset reference price or a price at
// or above the reference always maps to tier 1.
func (l Ladder) CurrentTier(refPrice, observed float64) int {
	if refPrice <= 0 || observed >= refPrice {
		return 1
	}
	drop := (refPrice - observed) / refPrice
	tier := int(drop/l.BuyIntervalRate) + 1
	if tier < 1 {
		tier = 1
	}
	if tier > l.TotalTiers {
		tier = l.TotalTiers
	}
	return tier
}
