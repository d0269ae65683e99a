package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/vitos/trading_agent_lab/internal/domain"
)

// WindowMap holds the supported leaderboard windows.
var WindowMap = map[string]time.Duration{
	"1d":  24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// ResolveWindow returns the window start for a key like "7d".
func ResolveWindow(key string, now time.Time) (time.Time, error) {
	d, ok := WindowMap[key]
	if !ok {
		keys := make([]string, 0, len(WindowMap))
		for k := range WindowMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return time.Time{}, fmt.Errorf("unsupported window %q, choose from %s", key, strings.Join(keys, ", "))
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return now.Add(-d), nil
}

// Row is one leaderboard line: the latest run's metrics per agent plus the
// run count in the window. Nil metrics render as "-".
type Row struct {
	AgentID      string   `json:"agent_id"`
	Runs         int      `json:"runs"`
	ProfitFactor *float64 `json:"profit_factor"`
	Sharpe       *float64 `json:"sharpe"`
	MaxDD        *float64 `json:"max_dd"`
	WinRate      *float64 `json:"win_rate"`
}

// Build aggregates runs since the given ISO timestamp into sorted leaderboard
// rows: profit factor desc, then sharpe desc, then max drawdown asc, absent
// metrics last.
func Build(ctx context.Context, store domain.RunRepository, sinceISO string) ([]Row, error) {
	runs, err := store.FetchRunsSince(ctx, sinceISO)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}

	counts := make(map[string]int)
	latest := make(map[string]*domain.RunRecord)
	for _, r := range runs {
		counts[r.AgentID]++
		if cur, ok := latest[r.AgentID]; !ok || r.TsEnd >= cur.TsEnd {
			latest[r.AgentID] = r
		}
	}

	runIDs := make([]string, 0, len(latest))
	for _, r := range latest {
		runIDs = append(runIDs, r.ID)
	}
	metrics, err := store.FetchMetricsForRuns(ctx, runIDs)
	if err != nil {
		return nil, err
	}
	byRun := make(map[string]map[string]*float64)
	for _, m := range metrics {
		if byRun[m.RunID] == nil {
			byRun[m.RunID] = make(map[string]*float64)
		}
		byRun[m.RunID][m.Name] = m.Value
	}

	rows := make([]Row, 0, len(latest))
	for agentID, run := range latest {
		vals := byRun[run.ID]
		rows = append(rows, Row{
			AgentID:      agentID,
			Runs:         counts[agentID],
			ProfitFactor: vals["profit_factor"],
			Sharpe:       vals["sharpe"],
			MaxDD:        vals["max_dd"],
			WinRate:      vals["win_rate"],
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if c := compareDesc(rows[i].ProfitFactor, rows[j].ProfitFactor); c != 0 {
			return c < 0
		}
		if c := compareDesc(rows[i].Sharpe, rows[j].Sharpe); c != 0 {
			return c < 0
		}
		return compareAsc(rows[i].MaxDD, rows[j].MaxDD) < 0
	})
	return rows, nil
}

// compareDesc orders larger values first, nil last.
func compareDesc(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a > *b:
		return -1
	case *a < *b:
		return 1
	}
	return 0
}

func compareAsc(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

// SortByScore orders rows by sharpe then profit factor, best first. Used by
// the nightly allocation pass.
func SortByScore(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := compareDesc(rows[i].Sharpe, rows[j].Sharpe); c != 0 {
			return c < 0
		}
		return compareDesc(rows[i].ProfitFactor, rows[j].ProfitFactor) < 0
	})
}

// FormatTable renders rows as a plain-text table.
func FormatTable(rows []Row) string {
	if len(rows) == 0 {
		return "No runs found in the selected window."
	}
	columns := []string{"agent_id", "runs", "profit_factor", "sharpe", "max_dd", "win_rate"}
	cells := make([][]string, 0, len(rows)+1)
	cells = append(cells, columns)
	for _, r := range rows {
		cells = append(cells, []string{
			r.AgentID,
			fmt.Sprintf("%d", r.Runs),
			fmtMetric(r.ProfitFactor),
			fmtMetric(r.Sharpe),
			fmtMetric(r.MaxDD),
			fmtMetric(r.WinRate),
		})
	}
	widths := make([]int, len(columns))
	for _, row := range cells {
		for i, c := range row {
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}
	var b strings.Builder
	for i, c := range columns {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(pad(c, widths[i]))
	}
	b.WriteString("\n")
	for i := range columns {
		if i > 0 {
			b.WriteString("-+-")
		}
		b.WriteString(strings.Repeat("-", widths[i]))
	}
	for _, row := range cells[1:] {
		b.WriteString("\n")
		for i, c := range row {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(pad(c, widths[i]))
		}
	}
	return b.String()
}

// FormatJSON renders rows as indented JSON.
func FormatJSON(rows []Row) (string, error) {
	raw, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func fmtMetric(v *float64) string {
	if v == nil || math.IsNaN(*v) {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
