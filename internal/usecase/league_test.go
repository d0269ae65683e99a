package usecase_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vitos/trading_agent_lab/internal/config"
	"github.com/vitos/trading_agent_lab/internal/domain"
	"github.com/vitos/trading_agent_lab/internal/usecase"
	"go.uber.org/zap"
)

func writeAgent(t *testing.T, dir, name, agentID string) {
	t.Helper()
	text := `
agent:
  id: ` + agentID + `
strategy:
  name: rsi_mean_rev
live:
  adapter: sim
  symbol: SPY
`
	if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLiveStepAll(t *testing.T) {
	agentsDir := t.TempDir()
	artifactsDir := t.TempDir()
	writeAgent(t, agentsDir, "alpha.yaml", "alpha")
	writeAgent(t, agentsDir, "bravo.yaml", "bravo")

	opts := usecase.RuntimeOptions{
		PriceSeries: map[string][]float64{"SPY": {102, 101, 100}},
		Logger:      zap.NewNop(),
	}
	results, err := usecase.LiveStepAll(context.Background(), config.EnvPolicy{}, agentsDir, artifactsDir, opts)
	if err != nil {
		t.Fatalf("LiveStepAll failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 agent results, got %d", len(results))
	}
	// Files glob sorted: alpha before bravo.
	if results[0].AgentID != "alpha" || results[1].AgentID != "bravo" {
		t.Errorf("unexpected order: %+v", results)
	}
	for _, r := range results {
		if r.Error != "" {
			t.Errorf("agent %s failed: %s", r.AgentID, r.Error)
		}
		if r.Step == nil {
			t.Errorf("agent %s missing step result", r.AgentID)
		}
	}

	// Each agent trades into its own isolated ledger.
	for _, id := range []string{"alpha", "bravo"} {
		if _, err := os.Stat(filepath.Join(artifactsDir, "live", id, "trades.csv")); err != nil {
			t.Errorf("agent %s ledger missing: %v", id, err)
		}
	}
	if _, err := os.Stat(filepath.Join(artifactsDir, "last_live.json")); err != nil {
		t.Errorf("last_live.json missing: %v", err)
	}
}

func TestLiveStepAllIsolatesFailures(t *testing.T) {
	agentsDir := t.TempDir()
	artifactsDir := t.TempDir()
	writeAgent(t, agentsDir, "alpha.yaml", "alpha")
	if err := os.WriteFile(filepath.Join(agentsDir, "broken.yaml"), []byte("strategy:\n  name: no_such_strategy\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := usecase.RuntimeOptions{
		PriceSeries: map[string][]float64{"SPY": {100}},
		Logger:      zap.NewNop(),
	}
	results, err := usecase.LiveStepAll(context.Background(), config.EnvPolicy{}, agentsDir, artifactsDir, opts)
	if err != nil {
		t.Fatalf("LiveStepAll failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	var ok, failed int
	for _, r := range results {
		if r.Error != "" {
			failed++
		} else {
			ok++
		}
	}
	if ok != 1 || failed != 1 {
		t.Errorf("expected one success and one failure, got %+v", results)
	}
}

// leagueRepo serves canned runs and metrics for nightly evaluation.
type leagueRepo struct {
	runs    []*domain.RunRecord
	metrics []*domain.MetricRecord
}

func (r *leagueRepo) RecordRun(context.Context, *domain.RunRecord, []domain.MetricRecord) error {
	return nil
}
func (r *leagueRepo) RecordOrder(context.Context, *domain.OrderRecord) error { return nil }
func (r *leagueRepo) FetchRunsSince(context.Context, string) ([]*domain.RunRecord, error) {
	return r.runs, nil
}
func (r *leagueRepo) FetchMetricsForRuns(context.Context, []string) ([]*domain.MetricRecord, error) {
	return r.metrics, nil
}

func TestNightlyEval(t *testing.T) {
	artifactsDir := t.TempDir()
	ts := time.Now().UTC().Format(time.RFC3339)
	pf := func(v float64) *float64 { return &v }

	repo := &leagueRepo{
		runs: []*domain.RunRecord{
			{ID: "r1", AgentID: "alpha", Mode: "backtest", TsStart: ts, TsEnd: ts},
			{ID: "r2", AgentID: "bravo", Mode: "backtest", TsStart: ts, TsEnd: ts},
			{ID: "r3", AgentID: "charlie", Mode: "backtest", TsStart: ts, TsEnd: ts},
		},
		metrics: []*domain.MetricRecord{
			{RunID: "r1", Name: "sharpe", Value: pf(2.0)},
			{RunID: "r2", Name: "sharpe", Value: pf(1.0)},
			{RunID: "r3", Name: "sharpe", Value: pf(0.1)},
		},
	}

	report, err := usecase.NightlyEval(context.Background(), repo, artifactsDir, 30, 2, 1)
	if err != nil {
		t.Fatalf("NightlyEval failed: %v", err)
	}
	if len(report.Promote) != 2 || report.Promote[0] != "alpha" || report.Promote[1] != "bravo" {
		t.Errorf("unexpected promotions: %v", report.Promote)
	}
	if len(report.Retire) != 1 || report.Retire[0] != "charlie" {
		t.Errorf("unexpected retirements: %v", report.Retire)
	}
	// Equal split across the promoted agents.
	if report.Allocations["alpha"] != 0.5 || report.Allocations["bravo"] != 0.5 {
		t.Errorf("unexpected allocations: %v", report.Allocations)
	}

	raw, err := os.ReadFile(filepath.Join(artifactsDir, "allocations.json"))
	if err != nil {
		t.Fatalf("allocations.json missing: %v", err)
	}
	var onDisk usecase.NightlyReport
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("allocations.json unparsable: %v", err)
	}
	if onDisk.SinceDays != 30 {
		t.Errorf("expected since_days 30, got %d", onDisk.SinceDays)
	}
}

func TestNightlyEvalEmptyLeague(t *testing.T) {
	report, err := usecase.NightlyEval(context.Background(), &leagueRepo{}, t.TempDir(), 30, 3, 1)
	if err != nil {
		t.Fatalf("NightlyEval failed: %v", err)
	}
	if len(report.Promote) != 0 || len(report.Retire) != 0 {
		t.Errorf("empty league must promote and retire nothing: %+v", report)
	}
}
