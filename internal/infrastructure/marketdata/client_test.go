package marketdata_test

import (
	"context"
	"testing"

	"github.com/vitos/trading_agent_lab/internal/infrastructure/marketdata"
)

func TestClientFeedAccumulatesObservations(t *testing.T) {
	ctx := context.Background()
	prices := []float64{100, 101, 102}
	i := 0
	feed := marketdata.NewClientFeed(func(context.Context, string) (float64, error) {
		px := prices[i%len(prices)]
		i++
		return px, nil
	})

	for range prices {
		if _, err := feed.LatestPrice(ctx, "SPY"); err != nil {
			t.Fatal(err)
		}
	}

	closes, err := feed.History(ctx, "SPY", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(closes) != 5 {
		t.Fatalf("expected 5 bars, got %d", len(closes))
	}
	// Two pad bars repeating the earliest observation, then the real series.
	want := []float64{100, 100, 100, 101, 102}
	for j, v := range want {
		if closes[j] != v {
			t.Errorf("bar %d: expected %g, got %g", j, v, closes[j])
		}
	}
}

func TestClientFeedSeedsHistoryWithLivePrice(t *testing.T) {
	feed := marketdata.NewClientFeed(func(context.Context, string) (float64, error) {
		return 415.25, nil
	})

	// History before any poll fetches one observation rather than padding
	// with the placeholder.
	closes, err := feed.History(context.Background(), "SPY", 3)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range closes {
		if v != 415.25 {
			t.Errorf("bar %d: expected the live price, got %g", i, v)
		}
	}
}

func TestClientFeedPropagatesErrors(t *testing.T) {
	feed := marketdata.NewClientFeed(func(context.Context, string) (float64, error) {
		return 0, context.DeadlineExceeded
	})
	if _, err := feed.LatestPrice(context.Background(), "SPY"); err == nil {
		t.Error("expected the price error to propagate")
	}
	if _, err := feed.History(context.Background(), "SPY", 3); err == nil {
		t.Error("history with no observations should surface the fetch error")
	}
}
