// Package backtest computes vectorized strategy returns over historical
// closes. It reuses the live signal abstraction but is not an order-by-order
// simulation.
package backtest

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/trading_agent_lab/internal/config"
	"github.com/vitos/trading_agent_lab/internal/domain"
	"github.com/vitos/trading_agent_lab/internal/evaluation"
	"github.com/vitos/trading_agent_lab/internal/strategy"
	"go.uber.org/zap"
)

// Result is the recorded outcome of one backtest run.
type Result struct {
	RunID   string
	AgentID string
	Symbol  string
	Bars    int
	Metrics map[string]*float64
	Equity  []float64
}

// Returns computes per-bar strategy returns: the prior bar's signal times
// size_pct of the close-to-close move, entered on the next bar.
func Returns(closes []float64, signals []int, sizePct float64) []float64 {
	returns := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		ret := closes[i]/closes[i-1] - 1
		returns[i] = float64(signals[i-1]) * sizePct / 100 * ret
	}
	return returns
}

// EquityCurve folds returns into a cumulative equity series starting at 1.
func EquityCurve(returns []float64) []float64 {
	equity := make([]float64, len(returns))
	acc := 1.0
	for i, r := range returns {
		acc *= 1 + r
		equity[i] = acc
	}
	return equity
}

// Run executes a backtest for the configured strategy over closes, records a
// run with sanitized metrics, and writes metrics.json under the artifacts
// directory.
func Run(ctx context.Context, cfg *config.Config, expandedConfig string, closes []float64, store domain.RunRepository, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(closes) < 2 {
		return nil, fmt.Errorf("backtest needs at least 2 bars, got %d", len(closes))
	}

	strat, err := strategy.New(cfg.Strategy.Name, cfg.Strategy.Params)
	if err != nil {
		return nil, err
	}
	sizePct := cfg.Live.SizePct
	if v, ok := cfg.Strategy.Params["size_pct"]; ok {
		sizePct = v
	}
	if sizePct == 0 {
		sizePct = 10
	}

	tsStart := time.Now().UTC()
	signals := strat.Signals(closes)
	returns := Returns(closes, signals, sizePct)
	equity := EquityCurve(returns)
	kpis := evaluation.ComputeKPIs(returns, equity)

	metrics := make(map[string]*float64, len(kpis))
	for name, value := range kpis {
		metrics[name] = evaluation.SanitizeMetric(value)
	}

	runID := os.Getenv("RUN_ID")
	if runID == "" {
		runID = uuid.NewString()
	}
	agentID := cfg.ResolvedAgentID()
	symbol := cfg.Symbols()[0]

	hash := sha256.Sum256([]byte(expandedConfig))
	configHash := hex.EncodeToString(hash[:])

	if store != nil {
		records := make([]domain.MetricRecord, 0, len(metrics))
		for name, value := range metrics {
			records = append(records, domain.MetricRecord{RunID: runID, Name: name, Value: value})
		}
		err := store.RecordRun(ctx, &domain.RunRecord{
			ID:         runID,
			AgentID:    agentID,
			Mode:       "backtest",
			TsStart:    tsStart.Format(time.RFC3339),
			TsEnd:      time.Now().UTC().Format(time.RFC3339),
			CommitSHA:  currentCommitSHA(),
			ConfigHash: configHash,
		}, records)
		if err != nil {
			return nil, err
		}
	}

	artifactsDir := cfg.Storage.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = "./artifacts"
	}
	runDir := filepath.Join(artifactsDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Warn("artifacts dir not created", zap.Error(err))
	} else {
		if raw, err := json.MarshalIndent(metrics, "", "  "); err == nil {
			if err := os.WriteFile(filepath.Join(runDir, "metrics.json"), raw, 0o644); err != nil {
				logger.Warn("metrics.json not written", zap.Error(err))
			}
		}
	}

	logger.Info("backtest complete",
		zap.String("run_id", runID),
		zap.String("agent_id", agentID),
		zap.String("symbol", symbol),
		zap.Int("bars", len(closes)),
		zap.Float64("eq_end", equity[len(equity)-1]))

	return &Result{
		RunID:   runID,
		AgentID: agentID,
		Symbol:  symbol,
		Bars:    len(closes),
		Metrics: metrics,
		Equity:  equity,
	}, nil
}

// LoadCloses reads close prices from a CSV file, using a "close" column when a
// header names one, else the last numeric column of each row.
func LoadCloses(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty CSV %s", path)
	}

	closeCol := -1
	start := 0
	for i, name := range records[0] {
		if strings.EqualFold(strings.TrimSpace(name), "close") {
			closeCol = i
			start = 1
			break
		}
	}

	var closes []float64
	for _, rec := range records[start:] {
		if len(rec) == 0 {
			continue
		}
		col := closeCol
		if col < 0 || col >= len(rec) {
			col = len(rec) - 1
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
		if err != nil {
			continue
		}
		closes = append(closes, v)
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("no close prices in %s", path)
	}
	return closes, nil
}

func currentCommitSHA() string {
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
