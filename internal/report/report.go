// Package report turns structure-of-arrays records into sorted tables
// rendered as Markdown or HTML.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hpungsan/brsave/internal/errors"
	"github.com/hpungsan/brsave/internal/mps"
)

// Options selects and orders the rows of a Table.
type Options struct {
	Title   string
	Columns []string // rotated column names; empty means all, in field order
	SortBy  string   // numeric column sorted descending; empty keeps record order
	Limit   int      // 0 means no limit
}

// Table is a rotated record.
type Table struct {
	Title   string   `json:"title,omitempty"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Total   int      `json:"total"` // rows before Limit
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Build rotates rec into rows and applies opts.
func Build(rec *mps.Record, opts Options) (*Table, error) {
	if rec == nil {
		return nil, errors.NewInvalidRequest("no record to report on")
	}
	if opts.Limit < 0 {
		return nil, errors.NewInvalidRequest("limit must not be negative")
	}
	rows := mps.Rotate(rec)

	all := columnsOf(rec)
	cols := opts.Columns
	if len(cols) == 0 {
		cols = all
	}
	known := make(map[string]bool, len(all))
	for _, c := range all {
		known[c] = true
	}
	for _, c := range cols {
		if !known[c] {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown column %q (have %s)", c, strings.Join(all, ", ")))
		}
	}
	if opts.SortBy != "" && !known[opts.SortBy] {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown sort column %q", opts.SortBy))
	}

	if opts.SortBy != "" {
		for _, r := range rows {
			v, ok := r.Get(opts.SortBy)
			if !ok {
				continue
			}
			if _, ok := number(v); !ok {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("column %q is not numeric", opts.SortBy))
			}
		}
		sort.SliceStable(rows, func(i, j int) bool {
			a, aok := rows[i].Get(opts.SortBy)
			b, bok := rows[j].Get(opts.SortBy)
			if !aok || !bok {
				return aok && !bok
			}
			x, _ := number(a)
			y, _ := number(b)
			return x > y
		})
	}

	t := &Table{Title: opts.Title, Columns: cols, Total: len(rows)}
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}
	t.Rows = make([][]any, 0, len(rows))
	for _, r := range rows {
		line := make([]any, len(cols))
		for i, c := range cols {
			line[i], _ = r.Get(c)
		}
		t.Rows = append(t.Rows, line)
	}
	return t, nil
}

// columnsOf lists the rotated names of rec's array fields.
func columnsOf(rec *mps.Record) []string {
	var cols []string
	for f := rec.Oldest(); f != nil; f = f.Next() {
		if _, ok := f.Value.([]any); ok {
			cols = append(cols, strings.TrimSuffix(f.Key, "s"))
		}
	}
	return cols
}

// number widens any decoded numeric scalar.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case mps.NonFinite:
		// NaN ranks with -Inf so descending sorts stay ordered.
		if math.IsNaN(float64(n)) {
			return math.Inf(-1), true
		}
		return float64(n), true
	}
	return 0, false
}

// Markdown renders the table as a GitHub-style pipe table.
func (t *Table) Markdown() string {
	var b strings.Builder
	if t.Title != "" {
		fmt.Fprintf(&b, "## %s\n\n", escape(t.Title))
	}
	if len(t.Columns) == 0 {
		b.WriteString("_no columns_\n")
		return b.String()
	}

	b.WriteString("| # |")
	for _, c := range t.Columns {
		fmt.Fprintf(&b, " %s |", escape(c))
	}
	b.WriteString("\n|---:|")
	for range t.Columns {
		b.WriteString("---|")
	}
	b.WriteByte('\n')

	for i, row := range t.Rows {
		fmt.Fprintf(&b, "| %d |", i+1)
		for _, v := range row {
			fmt.Fprintf(&b, " %s |", escape(cell(v)))
		}
		b.WriteByte('\n')
	}
	if len(t.Rows) < t.Total {
		fmt.Fprintf(&b, "\n_%d of %d rows_\n", len(t.Rows), t.Total)
	}
	return b.String()
}

// HTML renders the Markdown form through goldmark.
func (t *Table) HTML() (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(t.Markdown()), &buf); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *mps.Record, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

var escaper = strings.NewReplacer("|", `\|`, "\r", " ", "\n", " ")

func escape(s string) string {
	return escaper.Replace(s)
}
