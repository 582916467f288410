// Package dataset profiles tabular CSV files into the statistical briefing
// the analysis prompts embed: column types, summary statistics, head rows,
// null counts, and covariance for small datasets.
package dataset

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindInt    Kind = "int64"
	KindFloat  Kind = "float64"
	KindBool   Kind = "bool"
	KindObject Kind = "object"
)

const headRows = 5

// maxCovColumns bounds the covariance rendering; wider datasets skip it.
const maxCovColumns = 10

// Column holds one profiled CSV column.
type Column struct {
	Name   string
	Kind   Kind
	Nulls  int
	values []float64 // non-null numeric values in row order
}

// Numeric reports whether the column carries numbers.
func (c *Column) Numeric() bool { return c.Kind == KindInt || c.Kind == KindFloat }

// Profile is the statistical summary of one CSV file.
type Profile struct {
	Path    string
	Rows    int
	Columns []Column
	head    [][]string
	header  []string
}

// Load reads and profiles a CSV file with a header row.
func Load(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset %s is empty", path)
	}

	header := records[0]
	rows := records[1:]

	p := &Profile{
		Path:   path,
		Rows:   len(rows),
		header: header,
	}

	for i := 0; i < len(rows) && i < headRows; i++ {
		p.head = append(p.head, rows[i])
	}

	for col, name := range header {
		column := Column{Name: name, Kind: KindInt}
		sawValue := false
		for _, row := range rows {
			if col >= len(row) {
				column.Nulls++
				continue
			}
			cell := strings.TrimSpace(row[col])
			if isNull(cell) {
				column.Nulls++
				continue
			}
			sawValue = true
			column.Kind = narrowKind(column.Kind, cell)
		}
		if !sawValue {
			column.Kind = KindObject
		}
		if column.Numeric() {
			for _, row := range rows {
				if col >= len(row) {
					continue
				}
				cell := strings.TrimSpace(row[col])
				if isNull(cell) {
					continue
				}
				v, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					continue
				}
				column.values = append(column.values, v)
			}
		}
		p.Columns = append(p.Columns, column)
	}

	return p, nil
}

func isNull(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "na", "nan", "null", "none":
		return true
	}
	return false
}

// narrowKind degrades the inferred kind to the widest type the cell demands.
func narrowKind(current Kind, cell string) Kind {
	if current == KindObject {
		return KindObject
	}
	if current == KindBool {
		if isBool(cell) {
			return KindBool
		}
		return KindObject
	}
	if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return current
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil {
		if current == KindInt {
			return KindFloat
		}
		return current
	}
	if isBool(cell) && current == KindInt {
		// Only an entirely boolean column stays bool; mixing with
		// numbers falls through to object below.
		return KindBool
	}
	return KindObject
}

func isBool(cell string) bool {
	switch strings.ToLower(cell) {
	case "true", "false":
		return true
	}
	return false
}

// Describe renders per-column summary statistics for numeric columns, in the
// spirit of a dataframe describe() table.
func (p *Profile) Describe() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "column\tcount\tmean\tstd\tmin\t25%\t50%\t75%\tmax")
	for i := range p.Columns {
		c := &p.Columns[i]
		if !c.Numeric() || len(c.values) == 0 {
			continue
		}
		mean, std := meanStd(c.values)
		q1, q2, q3 := quartiles(c.values)
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Name, len(c.values),
			num(mean), num(std),
			num(minOf(c.values)), num(q1), num(q2), num(q3), num(maxOf(c.values)),
		)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// DTypes renders the column-name/type listing.
func (p *Profile) DTypes() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for i := range p.Columns {
		fmt.Fprintf(w, "%s\t%s\n", p.Columns[i].Name, p.Columns[i].Kind)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// Head renders the first rows of the dataset.
func (p *Profile) Head() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(p.header, "\t"))
	for _, row := range p.head {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// NullCounts renders the per-column null tally.
func (p *Profile) NullCounts() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for i := range p.Columns {
		fmt.Fprintf(w, "%s\t%d\n", p.Columns[i].Name, p.Columns[i].Nulls)
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

// Covariance renders the covariance matrix over numeric columns, or a note
// when the dataset is too wide for the briefing.
func (p *Profile) Covariance() string {
	if len(p.Columns) >= maxCovColumns {
		return "Too many columns to compute covariance"
	}

	var numeric []*Column
	for i := range p.Columns {
		if p.Columns[i].Numeric() {
			numeric = append(numeric, &p.Columns[i])
		}
	}
	if len(numeric) == 0 {
		return "No numeric columns"
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	names := make([]string, 0, len(numeric))
	for _, c := range numeric {
		names = append(names, c.Name)
	}
	fmt.Fprintln(w, "\t"+strings.Join(names, "\t"))
	for _, a := range numeric {
		cells := make([]string, 0, len(numeric))
		for _, c := range numeric {
			cells = append(cells, num(covariance(a.values, c.values)))
		}
		fmt.Fprintln(w, a.Name+"\t"+strings.Join(cells, "\t"))
	}
	w.Flush()
	return strings.TrimRight(b.String(), "\n")
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if len(values) < 2 {
		return mean, math.NaN()
	}
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(values)-1))
	return mean, std
}

func quartiles(values []float64) (q1, q2, q3 float64) {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return percentile(sorted, 0.25), percentile(sorted, 0.50), percentile(sorted, 0.75)
}

// percentile uses linear interpolation over a sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// covariance pairs values positionally and ignores trailing length mismatch,
// which only occurs when columns have different null patterns.
func covariance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return math.NaN()
	}
	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)
	var sum float64
	for i := 0; i < n; i++ {
		sum += (a[i] - meanA) * (b[i] - meanB)
	}
	return sum / float64(n-1)
}
