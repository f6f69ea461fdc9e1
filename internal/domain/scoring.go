package domain

import "math"

const (
	// SettlementFee es la comisión que cobra el mercado al resolver a favor.
	SettlementFee = 0.02

	// MoneyEpsilon absorbe el ruido de float en comparaciones de dólares.
	MoneyEpsilon = 1e-6
	// ShareEpsilon es la cantidad de shares por debajo de la cual una posición se considera cerrada.
	ShareEpsilon = 1e-9
)

// ROI is the net return per dollar if an outcome bought at price settles in
// our favour.
func ROI(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return (1 - SettlementFee) * (1 - price) / price
}

// G computes the per-day growth rate of holding an outcome bought at price
// until it resolves in resolutionDays, smoothed by lambda days:
//
//	g = ln(1 + r) / (days + λ),  r = (1 − fee)(1 − p)/p
//
// The second return value is false when the score is undefined.
func G(price, resolutionDays, lambda float64) (float64, bool) {
	if price <= 0 || price >= 1 {
		return 0, false
	}
	denom := resolutionDays + lambda
	if denom <= 0 {
		return 0, false
	}
	return math.Log1p(ROI(price)) / denom, true
}

// gPtr adapts G to the nullable shape used by records.
func gPtr(price, resolutionDays, lambda float64) *float64 {
	g, ok := G(price, resolutionDays, lambda)
	if !ok {
		return nil
	}
	return &g
}
