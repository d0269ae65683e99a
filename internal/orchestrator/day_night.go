// Package orchestrator alternates between live league steps during market
// hours and nightly evaluation off hours.
package orchestrator

import (
	"context"
	"time"

	"github.com/vitos/trading_agent_lab/internal/config"
	"github.com/vitos/trading_agent_lab/internal/domain"
	"github.com/vitos/trading_agent_lab/internal/usecase"
	"go.uber.org/zap"
)

// MarketOpenNow reports whether now falls inside the configured session:
// weekdays between open and close in the session timezone.
func MarketOpenNow(hours config.MarketHours, now time.Time) (bool, error) {
	tz := hours.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false, err
	}
	local := now.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false, nil
	}

	openStr := hours.Open
	if openStr == "" {
		openStr = "09:30"
	}
	closeStr := hours.Close
	if closeStr == "" {
		closeStr = "16:00"
	}
	open, err := clockAt(local, openStr, loc)
	if err != nil {
		return false, err
	}
	close, err := clockAt(local, closeStr, loc)
	if err != nil {
		return false, err
	}
	return !local.Before(open) && !local.After(close), nil
}

func clockAt(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

// CycleOutcome reports what one orchestrator cycle did.
type CycleOutcome struct {
	MarketOpen bool
	Steps      []usecase.AgentStepResult
	Nightly    *usecase.NightlyReport
}

// RunCycle runs one day/night decision: league live step while the market is
// open, nightly evaluation otherwise.
func RunCycle(ctx context.Context, cfg *config.Config, policy config.EnvPolicy, store domain.RunRepository, opts usecase.RuntimeOptions, logger *zap.Logger) (*CycleOutcome, error) {
	open, err := MarketOpenNow(cfg.Orchestrator.MarketHours, time.Now())
	if err != nil {
		return nil, err
	}
	outcome := &CycleOutcome{MarketOpen: open}
	if open {
		logger.Info("market hours detected; running league live step")
		steps, err := usecase.LiveStepAll(ctx, policy, cfg.League.AgentsDir, cfg.League.ArtifactsDir, opts)
		if err != nil {
			return nil, err
		}
		outcome.Steps = steps
		return outcome, nil
	}
	logger.Info("off hours detected; running nightly evaluation")
	report, err := usecase.NightlyEval(ctx, store, cfg.League.ArtifactsDir, cfg.League.SinceDays, cfg.League.TopK, cfg.League.RetireK)
	if err != nil {
		return nil, err
	}
	outcome.Nightly = report
	return outcome, nil
}
