package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamFeed subscribes to a websocket trade stream and keeps the last traded
// price plus a bounded tick history per symbol. Message shape follows the
// Alpaca data stream: an array of {"T":"t","S":symbol,"p":price} frames.
type StreamFeed struct {
	url    string
	logger *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	observed map[string][]float64
	maxKeep  int
	done     chan struct{}
}

func NewStreamFeed(url string, logger *zap.Logger) *StreamFeed {
	return &StreamFeed{
		url:      url,
		logger:   logger,
		observed: make(map[string][]float64),
		maxKeep:  10_000,
		done:     make(chan struct{}),
	}
}

type streamFrame struct {
	Type   string  `json:"T"`
	Symbol string  `json:"S"`
	Price  float64 `json:"p"`
}

// Connect dials the stream, sends the subscribe request and starts the read
// loop.
func (s *StreamFeed) Connect(symbols []string) error {
	c, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("dial stream %s: %w", s.url, err)
	}
	sub := map[string]any{"action": "subscribe", "trades": symbols}
	if err := c.WriteJSON(sub); err != nil {
		c.Close()
		return err
	}
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()
	go s.readLoop(c)
	return nil
}

func (s *StreamFeed) readLoop(c *websocket.Conn) {
	for {
		select {
		case <-s.done:
			return
		default:
		}
		_, message, err := c.ReadMessage()
		if err != nil {
			s.logger.Warn("stream read failed", zap.Error(err))
			return
		}
		var frames []streamFrame
		if err := json.Unmarshal(message, &frames); err != nil {
			continue
		}
		for _, f := range frames {
			if f.Type != "t" || f.Symbol == "" {
				continue
			}
			s.record(f.Symbol, f.Price)
		}
	}
}

func (s *StreamFeed) record(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := append(s.observed[symbol], price)
	if len(series) > s.maxKeep {
		series = series[len(series)-s.maxKeep:]
	}
	s.observed[symbol] = series
}

func (s *StreamFeed) Close() {
	close(s.done)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *StreamFeed) LatestPrice(_ context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series := s.observed[symbol]
	if len(series) == 0 {
		return PlaceholderPrice, nil
	}
	return series[len(series)-1], nil
}

func (s *StreamFeed) History(_ context.Context, symbol string, bars int) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Pad(s.observed[symbol], bars), nil
}
