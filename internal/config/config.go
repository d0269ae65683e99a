package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// LiveConfig holds the recognized live-trading options. All keys are optional;
// unknown keys in the YAML are tolerated and ignored.
type LiveConfig struct {
	Adapter         string  `yaml:"adapter"`
	Cash            float64 `yaml:"cash"`
	Commission      float64 `yaml:"commission"`
	SlippageBps     float64 `yaml:"slippage_bps"`
	LedgerDir       string  `yaml:"ledger_dir"`
	Bars            int     `yaml:"bars"`
	MaxPositionPct  float64 `yaml:"max_position_pct"`
	MaxOrderUSD     float64 `yaml:"max_order_usd"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
	Paper           *bool   `yaml:"paper"`
	BaseURL         string  `yaml:"base_url"`
	StreamURL       string  `yaml:"stream_url"`
	Symbol          string  `yaml:"symbol"`
	SizePct         float64 `yaml:"size_pct"`
	AllowAfterHours bool    `yaml:"allow_after_hours"`
}

// IsPaper reports the paper flag, defaulting to true when unset.
func (l LiveConfig) IsPaper() bool {
	if l.Paper == nil {
		return true
	}
	return *l.Paper
}

func (l *LiveConfig) applyDefaults() {
	if l.Adapter == "" {
		l.Adapter = "sim"
	}
	if l.Cash == 0 {
		l.Cash = 10_000
	}
	if l.SlippageBps == 0 {
		l.SlippageBps = 1.0
	}
	if l.LedgerDir == "" {
		l.LedgerDir = "./artifacts/live"
	}
	if l.Bars == 0 {
		l.Bars = 100
	}
	if l.MaxPositionPct == 0 {
		l.MaxPositionPct = 25
	}
	if l.MaxOrderUSD == 0 {
		l.MaxOrderUSD = 1_000
	}
	if l.MaxDailyLossPct == 0 {
		l.MaxDailyLossPct = 2
	}
	if l.SizePct == 0 {
		l.SizePct = 10
	}
}

// Universe accepts either a mapping with a symbols list or a bare list.
type Universe struct {
	Symbols []string `yaml:"symbols"`
}

func (u *Universe) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		return value.Decode(&u.Symbols)
	}
	var aux struct {
		Symbols []string `yaml:"symbols"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	u.Symbols = aux.Symbols
	return nil
}

type StrategyConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

type StorageConfig struct {
	DBPath       string `yaml:"db_path"`
	DBURL        string `yaml:"db_url"`
	ArtifactsDir string `yaml:"artifacts_dir"`
}

// SQLitePath resolves the database file path, accepting either a plain path
// or a sqlite:/// URL.
func (s StorageConfig) SQLitePath() string {
	if s.DBPath != "" {
		return s.DBPath
	}
	if s.DBURL != "" {
		return strings.TrimPrefix(s.DBURL, "sqlite:///")
	}
	return "./lab.db"
}

type DataConfig struct {
	Timeframe    string `yaml:"timeframe"`
	LookbackBars int    `yaml:"lookback_bars"`
	CSVPath      string `yaml:"csv_path"`
}

type MarketHours struct {
	Timezone string `yaml:"timezone"`
	Open     string `yaml:"open"`
	Close    string `yaml:"close"`
}

type OrchestratorConfig struct {
	MarketHours  MarketHours `yaml:"market_hours"`
	CycleMinutes int         `yaml:"cycle_minutes"`
}

type LeagueConfig struct {
	AgentsDir    string `yaml:"agents_dir"`
	ArtifactsDir string `yaml:"artifacts_dir"`
	TopK         int    `yaml:"top_k"`
	RetireK      int    `yaml:"retire_k"`
	SinceDays    int    `yaml:"since_days"`
}

func (l *LeagueConfig) applyDefaults() {
	if l.AgentsDir == "" {
		l.AgentsDir = "config/agents"
	}
	if l.ArtifactsDir == "" {
		l.ArtifactsDir = "artifacts/league"
	}
	if l.TopK == 0 {
		l.TopK = 3
	}
	if l.RetireK == 0 {
		l.RetireK = 1
	}
	if l.SinceDays == 0 {
		l.SinceDays = 30
	}
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the full engine configuration for one agent.
type Config struct {
	AgentID string `yaml:"agent_id"`
	Agent   struct {
		ID string `yaml:"id"`
	} `yaml:"agent"`
	Universe     Universe           `yaml:"universe"`
	Data         DataConfig         `yaml:"data"`
	Strategy     StrategyConfig     `yaml:"strategy"`
	Live         LiveConfig         `yaml:"live"`
	Storage      StorageConfig      `yaml:"storage"`
	League       LeagueConfig       `yaml:"league"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ResolvedAgentID returns the agent identity used when persisting runs.
func (c *Config) ResolvedAgentID() string {
	if c.Agent.ID != "" {
		return c.Agent.ID
	}
	if c.AgentID != "" {
		return c.AgentID
	}
	if c.Strategy.Name != "" {
		return c.Strategy.Name
	}
	return "unknown"
}

// Symbols resolves the trading universe: explicit list, else the single
// configured live symbol, else SPY.
func (c *Config) Symbols() []string {
	if len(c.Universe.Symbols) > 0 {
		return c.Universe.Symbols
	}
	if c.Live.Symbol != "" {
		return []string{c.Live.Symbol}
	}
	return []string{"SPY"}
}

var envVar = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv substitutes ${VAR} references with environment values. Missing
// variables expand to the empty string.
func ExpandEnv(text string) string {
	return envVar.ReplaceAllStringFunc(text, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

// Load reads a YAML config file, expands ${VAR} references and applies
// defaults. The expanded text is returned alongside for config hashing.
func Load(path string) (*Config, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	expanded := ExpandEnv(string(raw))
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, "", fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Live.applyDefaults()
	cfg.League.applyDefaults()
	return &cfg, expanded, nil
}
