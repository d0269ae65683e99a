package marketdata_test

import (
	"context"
	"testing"

	"github.com/vitos/trading_agent_lab/internal/infrastructure/marketdata"
)

func TestPad(t *testing.T) {
	cases := []struct {
		name   string
		series []float64
		bars   int
		want   []float64
	}{
		{"exact length", []float64{1, 2, 3}, 3, []float64{1, 2, 3}},
		{"truncates to newest", []float64{1, 2, 3, 4, 5}, 3, []float64{3, 4, 5}},
		{"left-pads with earliest", []float64{7, 8}, 5, []float64{7, 7, 7, 7, 8}},
		{"empty uses placeholder", nil, 3, []float64{100, 100, 100}},
		{"bars floor at one", []float64{9}, 0, []float64{9}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := marketdata.Pad(tc.series, tc.bars)
			if len(got) != len(tc.want) {
				t.Fatalf("length: expected %d, got %d", len(tc.want), len(got))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("index %d: expected %g, got %g", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestPadShortHistoryWindow(t *testing.T) {
	// Three observed prices padded to a 50-bar window: 47 copies of the first.
	series := []float64{101, 102, 103}
	got := marketdata.Pad(series, 50)
	if len(got) != 50 {
		t.Fatalf("expected 50 bars, got %d", len(got))
	}
	for i := 0; i < 47; i++ {
		if got[i] != 101 {
			t.Fatalf("bar %d: expected pad value 101, got %g", i, got[i])
		}
	}
	if got[47] != 101 || got[48] != 102 || got[49] != 103 {
		t.Errorf("tail mismatch: %v", got[47:])
	}
}

func TestSimFeed(t *testing.T) {
	ctx := context.Background()
	feed := marketdata.NewSimFeed(map[string][]float64{
		"SPY": {100, 101, 102},
	})

	px, err := feed.LatestPrice(ctx, "SPY")
	if err != nil {
		t.Fatal(err)
	}
	if px != 102 {
		t.Errorf("expected latest 102, got %g", px)
	}

	// Unknown symbols fall back to the placeholder.
	px, err = feed.LatestPrice(ctx, "QQQ")
	if err != nil {
		t.Fatal(err)
	}
	if px != marketdata.PlaceholderPrice {
		t.Errorf("expected placeholder, got %g", px)
	}

	closes, err := feed.History(ctx, "SPY", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(closes) != 5 || closes[0] != 100 || closes[4] != 102 {
		t.Errorf("unexpected history: %v", closes)
	}
}
