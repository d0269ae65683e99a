package usecase

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/trading_agent_lab/internal/config"
	"github.com/vitos/trading_agent_lab/internal/domain"
	"github.com/vitos/trading_agent_lab/internal/evaluation"
	"go.uber.org/zap"
)

// AgentStepResult pairs an agent with its live step outcome.
type AgentStepResult struct {
	AgentID string      `json:"agent_id"`
	Error   string      `json:"error,omitempty"`
	Step    *StepResult `json:"step,omitempty"`
}

// LiveStepAll runs one live step for every agent YAML in agentsDir. Each agent
// gets an isolated ledger directory under artifactsDir. One failing agent
// never stops the others. Results are mirrored to last_live.json.
func LiveStepAll(ctx context.Context, policy config.EnvPolicy, agentsDir, artifactsDir string, opts RuntimeOptions) ([]AgentStepResult, error) {
	files, err := filepath.Glob(filepath.Join(agentsDir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, err
	}

	var results []AgentStepResult
	for _, file := range files {
		cfg, _, err := config.Load(file)
		if err != nil {
			results = append(results, AgentStepResult{AgentID: file, Error: err.Error()})
			continue
		}
		agentID := cfg.ResolvedAgentID()
		cfg.Live.LedgerDir = filepath.Join(artifactsDir, "live", agentID)

		rt, err := BuildRuntime(cfg, policy, opts)
		if err != nil {
			logger.Error("agent runtime failed", zap.String("agent_id", agentID), zap.Error(err))
			results = append(results, AgentStepResult{AgentID: agentID, Error: err.Error()})
			continue
		}
		res, err := StepOnce(ctx, rt, rt.Symbols[0], uuid.NewString())
		if err != nil {
			logger.Error("agent step failed", zap.String("agent_id", agentID), zap.Error(err))
			results = append(results, AgentStepResult{AgentID: agentID, Error: err.Error()})
			continue
		}
		results = append(results, AgentStepResult{AgentID: agentID, Step: res})
	}

	if raw, err := json.MarshalIndent(results, "", "  "); err == nil {
		if err := os.WriteFile(filepath.Join(artifactsDir, "last_live.json"), raw, 0o644); err != nil {
			logger.Warn("last_live.json not written", zap.Error(err))
		}
	}
	return results, nil
}

// NightlyReport is the evaluation summary plus allocation recommendations.
type NightlyReport struct {
	SinceDays   int                `json:"since_days"`
	Promote     []string           `json:"promote"`
	Retire      []string           `json:"retire"`
	Allocations map[string]float64 `json:"allocations"`
	Rows        []evaluation.Row   `json:"rows"`
}

// NightlyEval ranks agents by sharpe then profit factor, promotes the top k
// with equal allocations, retires the bottom k, and writes allocations.json.
func NightlyEval(ctx context.Context, store domain.RunRepository, artifactsDir string, sinceDays, topK, retireK int) (*NightlyReport, error) {
	since := time.Now().UTC().AddDate(0, 0, -sinceDays).Format(time.RFC3339)
	rows, err := evaluation.Build(ctx, store, since)
	if err != nil {
		return nil, err
	}
	evaluation.SortByScore(rows)

	report := &NightlyReport{
		SinceDays:   sinceDays,
		Allocations: map[string]float64{},
		Rows:        rows,
	}
	if len(rows) > 0 {
		k := topK
		if k > len(rows) {
			k = len(rows)
		}
		for _, row := range rows[:k] {
			report.Promote = append(report.Promote, row.AgentID)
		}
		if retireK > 0 {
			r := retireK
			if r > len(rows) {
				r = len(rows)
			}
			for _, row := range rows[len(rows)-r:] {
				report.Retire = append(report.Retire, row.AgentID)
			}
		}
		for _, id := range report.Promote {
			report.Allocations[id] = roundTo(1.0/float64(len(report.Promote)), 4)
		}
	}

	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, err
	}
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(artifactsDir, "allocations.json"), raw, 0o644); err != nil {
		return nil, err
	}
	return report, nil
}

func roundTo(v float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	return float64(int64(v*scale+0.5)) / scale
}
