package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/trading_agent_lab/internal/achievements"
	"github.com/vitos/trading_agent_lab/internal/backtest"
	"github.com/vitos/trading_agent_lab/internal/config"
	"github.com/vitos/trading_agent_lab/internal/domain"
	"github.com/vitos/trading_agent_lab/internal/evaluation"
	"github.com/vitos/trading_agent_lab/internal/infrastructure/logger"
	"github.com/vitos/trading_agent_lab/internal/infrastructure/storage"
	"github.com/vitos/trading_agent_lab/internal/ledger"
	"github.com/vitos/trading_agent_lab/internal/orchestrator"
	"github.com/vitos/trading_agent_lab/internal/usecase"
	"github.com/vitos/trading_agent_lab/internal/web"
	"go.uber.org/zap"
)

const usage = `Trading Agent Lab

Usage:
  lab live        -config <path> [-loop -max-steps N -interval SECS -flat-at-end]
  lab close       -config <path>
  lab league      -config <path>
  lab nightly     -config <path>
  lab orchestrate -config <path>
  lab backtest    -config <path>
  lab leaderboard -db <path> [-window 1d|7d|30d] [-json]
  lab orders      -db <path> [-limit N]
  lab ledger      -path <trades.csv> [-limit N]
  lab serve       -db <path> [-port N]
  lab doctor      -config <path>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := config.LoadEnvFile(""); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "live":
		err = cmdLive(ctx, os.Args[2:])
	case "close":
		err = cmdClose(ctx, os.Args[2:])
	case "league":
		err = cmdLeague(ctx, os.Args[2:])
	case "nightly":
		err = cmdNightly(ctx, os.Args[2:])
	case "orchestrate":
		err = cmdOrchestrate(ctx, os.Args[2:])
	case "backtest":
		err = cmdBacktest(ctx, os.Args[2:])
	case "leaderboard":
		err = cmdLeaderboard(ctx, os.Args[2:])
	case "orders":
		err = cmdOrders(ctx, os.Args[2:])
	case "ledger":
		err = cmdLedger(os.Args[2:])
	case "serve":
		err = cmdServe(ctx, os.Args[2:])
	case "doctor":
		err = cmdDoctor(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging.File != "" {
		return logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	}
	return logger.NewLogger(cfg.Logging.Level)
}

func openRuntime(cfg *config.Config, log *zap.Logger) (*usecase.Runtime, *storage.SQLiteStore, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath())
	if err != nil {
		return nil, nil, err
	}
	rt, err := usecase.BuildRuntime(cfg, config.PolicyFromEnv(), usecase.RuntimeOptions{
		Store:  store,
		Badges: achievements.NewFromEnv(log),
		Logger: log,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return rt, store, nil
}

func cmdLive(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	configPath := fs.String("config", "config/base.yaml", "agent config file")
	loop := fs.Bool("loop", false, "run multiple steps")
	maxSteps := fs.Int("max-steps", 1, "steps to run in loop mode")
	interval := fs.Float64("interval", 60, "seconds between steps")
	flatAtEnd := fs.Bool("flat-at-end", false, "flatten the position after the loop")
	fs.Parse(args)

	cfg, _, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	rt, store, err := openRuntime(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if *loop {
		res, err := usecase.RunLoop(ctx, rt, *maxSteps, time.Duration(*interval*float64(time.Second)), *flatAtEnd)
		if err != nil {
			return err
		}
		return printJSON(res)
	}
	res, err := usecase.StepOnce(ctx, rt, rt.Symbols[0], newRunID())
	if err != nil {
		return err
	}
	return printJSON(res)
}

func cmdClose(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	configPath := fs.String("config", "config/base.yaml", "agent config file")
	fs.Parse(args)

	cfg, _, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	rt, store, err := openRuntime(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := usecase.FlattenSymbol(ctx, rt, rt.Symbols[0], rt.Feed.LatestPrice)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func cmdLeague(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("league", flag.ExitOnError)
	configPath := fs.String("config", "config/base.yaml", "league config file")
	fs.Parse(args)

	cfg, _, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath())
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := usecase.LiveStepAll(ctx, config.PolicyFromEnv(), cfg.League.AgentsDir, cfg.League.ArtifactsDir, usecase.RuntimeOptions{
		Store:  store,
		Badges: achievements.NewFromEnv(log),
		Logger: log,
	})
	if err != nil {
		return err
	}
	return printJSON(results)
}

func cmdNightly(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("nightly", flag.ExitOnError)
	configPath := fs.String("config", "config/base.yaml", "league config file")
	fs.Parse(args)

	cfg, _, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath())
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := usecase.NightlyEval(ctx, store, cfg.League.ArtifactsDir, cfg.League.SinceDays, cfg.League.TopK, cfg.League.RetireK)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func cmdOrchestrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("orchestrate", flag.ExitOnError)
	configPath := fs.String("config", "config/base.yaml", "config file")
	once := fs.Bool("once", false, "run a single cycle and exit")
	fs.Parse(args)

	cfg, _, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath())
	if err != nil {
		return err
	}
	defer store.Close()

	opts := usecase.RuntimeOptions{
		Store:  store,
		Badges: achievements.NewFromEnv(log),
		Logger: log,
	}
	policy := config.PolicyFromEnv()

	cycle := func() error {
		outcome, err := orchestrator.RunCycle(ctx, cfg, policy, store, opts, log)
		if err != nil {
			return err
		}
		return printJSON(outcome)
	}
	if *once {
		return cycle()
	}

	minutes := cfg.Orchestrator.CycleMinutes
	if minutes <= 0 {
		minutes = 15
	}
	ticker := time.NewTicker(time.Duration(minutes) * time.Minute)
	defer ticker.Stop()
	for {
		if err := cycle(); err != nil {
			log.Error("cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			log.Info("Shutting down...")
			return nil
		case <-ticker.C:
		}
	}
}

func cmdBacktest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	configPath := fs.String("config", "config/base.yaml", "agent config file")
	fs.Parse(args)

	cfg, expanded, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Data.CSVPath == "" {
		return fmt.Errorf("backtest requires data.csv_path in the config")
	}
	closes, err := backtest.LoadCloses(cfg.Data.CSVPath)
	if err != nil {
		return err
	}
	if cfg.Data.LookbackBars > 0 && len(closes) > cfg.Data.LookbackBars {
		closes = closes[len(closes)-cfg.Data.LookbackBars:]
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath())
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := backtest.Run(ctx, cfg, expanded, closes, store, log)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"run_id":   res.RunID,
		"agent_id": res.AgentID,
		"symbol":   res.Symbol,
		"bars":     res.Bars,
		"metrics":  res.Metrics,
	})
}

func cmdLeaderboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	dbPath := fs.String("db", "./lab.db", "sqlite database path")
	window := fs.String("window", "7d", "window: 1d, 7d or 30d")
	asJSON := fs.Bool("json", false, "emit JSON instead of a table")
	fs.Parse(args)

	since, err := evaluation.ResolveWindow(*window, time.Now().UTC())
	if err != nil {
		return err
	}
	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := evaluation.Build(ctx, store, since.Format(time.RFC3339))
	if err != nil {
		return err
	}
	if *asJSON {
		out, err := evaluation.FormatJSON(rows)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}
	fmt.Println(evaluation.FormatTable(rows))
	return nil
}

func cmdOrders(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("orders", flag.ExitOnError)
	dbPath := fs.String("db", "./lab.db", "sqlite database path")
	limit := fs.Int("limit", 10, "rows to show")
	fs.Parse(args)

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	orders, err := store.TailOrders(ctx, *limit)
	if err != nil {
		return err
	}
	return printJSON(orders)
}

func cmdLedger(args []string) error {
	fs := flag.NewFlagSet("ledger", flag.ExitOnError)
	path := fs.String("path", "./artifacts/live/trades.csv", "ledger file")
	limit := fs.Int("limit", 10, "rows to show")
	fs.Parse(args)

	led, err := ledger.Open(dirOf(*path))
	if err != nil {
		return err
	}
	entries, err := led.Tail(*limit)
	if err != nil {
		return err
	}
	type row struct {
		Epoch  int64       `json:"epoch"`
		Symbol string      `json:"symbol"`
		Side   domain.Side `json:"side"`
		Qty    float64     `json:"qty"`
		Price  float64     `json:"price"`
	}
	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, row{Epoch: e.Ts, Symbol: e.Symbol, Side: e.Side, Qty: e.Qty, Price: e.Price})
	}
	return printJSON(rows)
}

func cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	dbPath := fs.String("db", "./lab.db", "sqlite database path")
	port := fs.Int("port", 8080, "listen port")
	level := fs.String("level", "info", "log level")
	fs.Parse(args)

	log, err := logger.NewLogger(*level)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	server := web.NewServer(*port, store, log)
	go func() {
		<-ctx.Done()
		log.Info("Shutting down...")
		server.Shutdown(context.Background())
	}()
	return server.Start()
}

func cmdDoctor(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "config/base.yaml", "agent config file")
	fs.Parse(args)

	cfg, _, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	policy := config.PolicyFromEnv()

	fmt.Printf("adapter: %s\n", cfg.Live.Adapter)
	fmt.Printf("paper: %v\n", cfg.Live.IsPaper())
	fmt.Printf("live_broker: %s\n", policy.LiveBroker)
	fmt.Printf("real_trading_enabled: %v\n", policy.RealTradingEnabled)
	fmt.Printf("allow_after_hours: %v\n", policy.AllowAfterHours || cfg.Live.AllowAfterHours)
	fmt.Printf("max_order_usd: %.2f", cfg.Live.MaxOrderUSD)
	if policy.MaxOrderUSD > 0 {
		fmt.Printf(" (env override %.2f)", policy.MaxOrderUSD)
	}
	fmt.Println()
	if !cfg.Live.IsPaper() && !policy.RealTradingEnabled {
		fmt.Println("WARNING: real broker selected but real trading is locked; set REAL_TRADING_ENABLED=1")
	}
	if !policy.AllowAfterHours && !cfg.Live.AllowAfterHours {
		fmt.Println("hint: export ALLOW_AFTER_HOURS=1 to trade outside market hours")
	}
	return nil
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func newRunID() string {
	return fmt.Sprintf("run-%d", time.Now().UnixNano())
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
