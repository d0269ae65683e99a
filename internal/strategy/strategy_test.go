package strategy_test

import (
	"testing"

	"github.com/vitos/trading_agent_lab/internal/domain"
	"github.com/vitos/trading_agent_lab/internal/strategy"
)

func TestNewUnknownStrategy(t *testing.T) {
	_, err := strategy.New("no_such_strategy", nil)
	if err == nil {
		t.Fatal("unknown strategy must be a configuration error")
	}
}

func TestRegister(t *testing.T) {
	strategy.Register("always_long", func(map[string]float64) (domain.Strategy, error) {
		return constantStrategy(1), nil
	})
	s, err := strategy.New("always_long", nil)
	if err != nil {
		t.Fatal(err)
	}
	sig := s.Signals([]float64{1, 2, 3})
	if len(sig) != 3 || sig[0] != 1 {
		t.Errorf("unexpected signals: %v", sig)
	}
}

type constantStrategy int

func (c constantStrategy) Signals(closes []float64) []int {
	out := make([]int, len(closes))
	for i := range out {
		out[i] = int(c)
	}
	return out
}

func TestRSIMeanRevSignalLength(t *testing.T) {
	s, err := strategy.New("rsi_mean_rev", map[string]float64{"rsi_len": 3})
	if err != nil {
		t.Fatal(err)
	}
	closes := []float64{100, 101, 102, 101, 100, 99, 98, 99, 100}
	sig := s.Signals(closes)
	if len(sig) != len(closes) {
		t.Fatalf("expected %d signals, got %d", len(closes), len(sig))
	}
	for i, v := range sig {
		if v != 1 && v != -1 {
			t.Errorf("bar %d: signal must be +1 or -1, got %d", i, v)
		}
	}
}

func TestRSIMeanRevLongAfterDecline(t *testing.T) {
	s, err := strategy.New("rsi_mean_rev", map[string]float64{"rsi_len": 5})
	if err != nil {
		t.Fatal(err)
	}
	// A steady decline drives RSI toward 0, well under the overbought line.
	closes := []float64{110, 108, 106, 104, 102, 100, 98, 96, 94, 92}
	sig := s.Signals(closes)
	if sig[len(sig)-1] != 1 {
		t.Errorf("expected long signal after a decline, got %d", sig[len(sig)-1])
	}
}

func TestRSIMeanRevExitsAfterRally(t *testing.T) {
	s, err := strategy.New("rsi_mean_rev", map[string]float64{"rsi_len": 5, "overbought": 70})
	if err != nil {
		t.Fatal(err)
	}
	// A straight rally pins RSI at 100, above overbought.
	closes := []float64{100, 102, 104, 106, 108, 110, 112, 114, 116, 118}
	sig := s.Signals(closes)
	if sig[len(sig)-1] != -1 {
		t.Errorf("expected exit signal after a rally, got %d", sig[len(sig)-1])
	}
}

func TestRSIMeanRevFlatSeriesIsNeutralLong(t *testing.T) {
	s, err := strategy.New("rsi_mean_rev", nil)
	if err != nil {
		t.Fatal(err)
	}
	// Flat prices leave RSI at the neutral 50, at or under overbought.
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	sig := s.Signals(closes)
	if sig[len(sig)-1] != 1 {
		t.Errorf("expected long on neutral RSI, got %d", sig[len(sig)-1])
	}
}
