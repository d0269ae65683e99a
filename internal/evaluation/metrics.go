// Package evaluation computes run KPIs and aggregates them into leaderboards.
package evaluation

import "math"

// TradingDays is the annualization factor for daily returns.
const TradingDays = 252

// ProfitFactor is the ratio of gross gains to gross losses.
func ProfitFactor(returns []float64) float64 {
	var gains, losses float64
	for _, r := range returns {
		if r > 0 {
			gains += r
		} else {
			losses -= r
		}
	}
	if losses == 0 {
		if gains > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return gains / losses
}

// MaxDrawdown is the maximum peak-to-trough drawdown as a negative number.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	minDD := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		dd := e/peak - 1
		if dd < minDD {
			minDD = dd
		}
	}
	return minDD
}

// SharpeRatio annualizes mean over population standard deviation of daily
// returns.
func SharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(TradingDays)
}

// WinRate is the fraction of non-flat periods that were positive.
func WinRate(returns []float64) float64 {
	var wins, losses int
	for _, r := range returns {
		if r > 0 {
			wins++
		} else if r < 0 {
			losses++
		}
	}
	total := wins + losses
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// ComputeKPIs returns the canonical KPI set for a return/equity pair.
func ComputeKPIs(returns, equity []float64) map[string]float64 {
	pnl := 0.0
	if len(equity) > 0 {
		pnl = equity[len(equity)-1] - 1
	}
	return map[string]float64{
		"pnl":           pnl,
		"profit_factor": ProfitFactor(returns),
		"sharpe":        SharpeRatio(returns),
		"max_dd":        MaxDrawdown(equity),
		"win_rate":      WinRate(returns),
	}
}

// SanitizeMetric converts a value to a nullable stored form: non-finite
// values become nil rather than corrupting the store.
func SanitizeMetric(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
