// Package achievements tracks optional trading milestones in a JSON state
// file. It is a side-channel observer: every failure is logged and swallowed,
// never bubbled into a trading decision.
package achievements

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const stateFile = "achievements.json"

var (
	notionalThresholds = []float64{1_000, 10_000, 100_000}
	profitThresholds   = []float64{1, 100, 1_000}
)

type entry struct {
	Key string `json:"key"`
	Ts  string `json:"ts"`
}

type state struct {
	Achievements map[string]entry   `json:"achievements"`
	Totals       map[string]float64 `json:"totals"`
}

// Tracker accumulates per-mode notional and profit totals and unlocks
// threshold achievements.
type Tracker struct {
	mu      sync.Mutex
	dir     string
	enabled bool
	logger  *zap.Logger
	now     func() time.Time
}

// NewFromEnv builds a tracker from ACHIEVEMENTS_DIR / ACHIEVEMENTS_ENABLED.
func NewFromEnv(logger *zap.Logger) *Tracker {
	dir := os.Getenv("ACHIEVEMENTS_DIR")
	if dir == "" {
		dir = filepath.Join(".", "artifacts", "achievements")
	}
	enabled := os.Getenv("ACHIEVEMENTS_ENABLED") == "1" ||
		os.Getenv("ACHIEVEMENTS_ENABLED") == "true"
	return New(dir, enabled, logger)
}

func New(dir string, enabled bool, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{dir: dir, enabled: enabled, logger: logger, now: time.Now}
}

// RecordTradeNotional adds traded notional for a mode ("paper" or "real") and
// returns any newly unlocked achievement keys.
func (t *Tracker) RecordTradeNotional(mode string, notional float64) []string {
	if !t.enabled || notional <= 0 {
		return nil
	}
	return t.advance(mode+"_notional", notional, notionalThresholds, func(th float64) string {
		return fmt.Sprintf("%s_$%.0f_notional", mode, th)
	})
}

// RecordLiveProfit adds realized profit for a mode and returns newly unlocked
// keys such as "paper_first_$1_profit".
func (t *Tracker) RecordLiveProfit(mode string, profit float64) []string {
	if !t.enabled || profit <= 0 {
		return nil
	}
	return t.advance(mode+"_profit", profit, profitThresholds, func(th float64) string {
		if th == profitThresholds[0] {
			return fmt.Sprintf("%s_first_$%.0f_profit", mode, th)
		}
		return fmt.Sprintf("%s_$%.0f_profit", mode, th)
	})
}

func (t *Tracker) advance(track string, amount float64, thresholds []float64, keyFn func(float64) string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, err := t.load()
	if err != nil {
		t.logger.Warn("achievements state unreadable", zap.Error(err))
		return nil
	}
	before := st.Totals[track]
	after := before + amount
	st.Totals[track] = after

	var unlocked []string
	for _, th := range thresholds {
		key := keyFn(th)
		if _, done := st.Achievements[key]; done {
			continue
		}
		if after >= th {
			st.Achievements[key] = entry{Key: key, Ts: t.now().UTC().Format(time.RFC3339)}
			unlocked = append(unlocked, key)
		}
	}
	if err := t.save(st); err != nil {
		t.logger.Warn("achievements state not saved", zap.Error(err))
	}
	return unlocked
}

// List returns the full persisted state.
func (t *Tracker) List() (map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, err := t.load()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"achievements": st.Achievements,
		"totals":       st.Totals,
	}, nil
}

// Reset removes all tracked achievements.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := os.Remove(filepath.Join(t.dir, stateFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (t *Tracker) load() (*state, error) {
	st := &state{
		Achievements: make(map[string]entry),
		Totals:       make(map[string]float64),
	}
	raw, err := os.ReadFile(filepath.Join(t.dir, stateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, err
	}
	if st.Achievements == nil {
		st.Achievements = make(map[string]entry)
	}
	if st.Totals == nil {
		st.Totals = make(map[string]float64)
	}
	return st, nil
}

func (t *Tracker) save(st *state) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(t.dir, stateFile), raw, 0o644)
}
