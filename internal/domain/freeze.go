package domain

import "time"

// FreezeReason identifica el circuit breaker que congeló un mercado.
type FreezeReason string

const (
	FreezePriceDrop   FreezeReason = "price_drop"
	FreezeVolumeSpike FreezeReason = "volume_spike"
)

// FreezeStatus suspends auto-buy for a market until Until.
type FreezeStatus struct {
	Reason  FreezeReason       `json:"reason"`
	Since   time.Time          `json:"since"`
	Until   time.Time          `json:"until"`
	Details map[string]float64 `json:"details,omitempty"`
}

// IsActive reports whether the freeze still applies at now.
func (f FreezeStatus) IsActive(now time.Time) bool {
	return now.Before(f.Until)
}
