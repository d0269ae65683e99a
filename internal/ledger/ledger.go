// Package ledger maintains the append-only CSV trade log. The ledger is the
// durable record of trade history for the simulator: open quantity and cost
// basis are always derived by replaying entries, never stored.
package ledger

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vitos/trading_agent_lab/internal/domain"
)

const (
	FileName = "trades.csv"
	header   = "ts,symbol,side,qty,price"
)

// Entry is one persisted trade row.
type Entry struct {
	Ts     int64
	Symbol string
	Side   domain.Side
	Qty    float64
	Price  float64
}

// Ledger appends fills to and replays entries from a single trades.csv file.
type Ledger struct {
	path string
	now  func() time.Time
}

// Open ensures the ledger directory and file exist, writing the header line
// when the file is first created.
func Open(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(header+"\n"), 0o644); err != nil {
			return nil, err
		}
	}
	return &Ledger{path: path, now: time.Now}, nil
}

func (l *Ledger) Path() string { return l.path }

// Append writes one row for a fill, in fill order, with an epoch-second
// timestamp. The file is never rewritten or compacted.
func (l *Ledger) Append(fill domain.Fill) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d,%s,%s,%g,%g\n",
		l.now().Unix(), fill.Symbol, fill.Side, fill.Qty, fill.Price)
	return err
}

// Entries returns all rows for one symbol in file (timestamp) order. An empty
// symbol returns every row.
func (l *Ledger) Entries(symbol string) ([]Entry, error) {
	f, err := os.Open(l.path)
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
	var entries []Entry
	for i, rec := range records {
		if i == 0 || len(rec) < 5 {
			continue // header
		}
		if symbol != "" && rec[1] != symbol {
			continue
		}
		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			continue
		}
		qty, err1 := strconv.ParseFloat(rec[3], 64)
		price, err2 := strconv.ParseFloat(rec[4], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		entries = append(entries, Entry{
			Ts:     ts,
			Symbol: rec[1],
			Side:   domain.Side(rec[2]),
			Qty:    qty,
			Price:  price,
		})
	}
	return entries, nil
}

// Tail returns the last n entries across all symbols.
func (l *Ledger) Tail(n int) ([]Entry, error) {
	entries, err := l.Entries("")
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// NetPosition folds entries to the net signed open quantity.
func NetPosition(entries []Entry) float64 {
	var qty float64
	for _, e := range entries {
		if e.Side == domain.SideBuy {
			qty += e.Qty
		} else {
			qty -= e.Qty
		}
	}
	return qty
}

// CostBasis reduces entries for one symbol, in order, to the open quantity and
// its volume-weighted average cost. The fold is pure: replaying the same rows
// always yields the same result.
//
// Rules per trade with signed quantity s and price p:
//   - position goes to zero: basis resets to 0
//   - opening from flat or extending in the same direction: basis is the
//     volume-weighted average of the old basis and p
//   - reducing without flipping sign: basis unchanged
//   - flipping through zero: basis resets to p
func CostBasis(entries []Entry) (qty, avgCost float64) {
	for _, e := range entries {
		s := e.Qty
		if e.Side == domain.SideSell {
			s = -s
		}
		newQty := qty + s
		switch {
		case newQty == 0:
			avgCost = 0
		case qty == 0:
			avgCost = e.Price
		case (qty > 0) == (newQty > 0) && math.Abs(newQty) > math.Abs(qty):
			avgCost = (avgCost*math.Abs(qty) + e.Price*math.Abs(s)) / math.Abs(newQty)
		case (qty > 0) == (newQty > 0):
			// partial close keeps the remaining basis
		default:
			avgCost = e.Price
		}
		qty = newQty
	}
	return qty, avgCost
}

// RealizedPnL is the profit of closing openQty at exitPx against avgCost.
func RealizedPnL(openQty, avgCost, exitPx float64) float64 {
	if openQty >= 0 {
		return (exitPx - avgCost) * openQty
	}
	return (avgCost - exitPx) * -openQty
}
