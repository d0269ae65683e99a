package strategy

import (
	"github.com/vitos/trading_agent_lab/internal/domain"
)

// RSIMeanReversion goes long while RSI stays at or below the overbought
// threshold and flips to -1 once it crosses above.
type RSIMeanReversion struct {
	rsiLen     int
	oversold   float64
	overbought float64
}

func newRSIMeanReversion(params map[string]float64) (domain.Strategy, error) {
	return &RSIMeanReversion{
		rsiLen:     int(param(params, "rsi_len", 14)),
		oversold:   param(params, "oversold", 30),
		overbought: param(params, "overbought", 70),
	}, nil
}

func (s *RSIMeanReversion) Signals(closes []float64) []int {
	rsi := rsiSeries(closes, s.rsiLen)
	signals := make([]int, len(closes))
	for i := range closes {
		if rsi[i] <= s.overbought {
			signals[i] = 1
		} else {
			signals[i] = -1
		}
	}
	return signals
}

// rsiSeries computes a simple rolling-mean RSI. Bars before the window fills
// are back-filled with the first valid value, defaulting to the neutral 50.
func rsiSeries(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	if n < 1 || len(closes) < 2 {
		for i := range out {
			out[i] = 50
		}
		return out
	}

	ups := make([]float64, len(closes))
	downs := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			ups[i] = delta
		} else {
			downs[i] = -delta
		}
	}

	firstValid := -1
	for i := n; i < len(closes); i++ {
		var upSum, downSum float64
		for j := i - n + 1; j <= i; j++ {
			upSum += ups[j]
			downSum += downs[j]
		}
		if downSum == 0 {
			if upSum == 0 {
				out[i] = 50
			} else {
				out[i] = 100
			}
		} else {
			rs := (upSum / float64(n)) / (downSum / float64(n))
			out[i] = 100 - 100/(1+rs)
		}
		if firstValid == -1 {
			firstValid = i
		}
	}

	fill := 50.0
	if firstValid >= 0 {
		fill = out[firstValid]
	}
	for i := 0; i < len(out) && (firstValid == -1 || i < firstValid); i++ {
		out[i] = fill
	}
	return out
}
