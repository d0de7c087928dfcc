package facecorpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// MissingValue is the textual form of a cell no annotation file contributed to.
const MissingValue = "NaN"

// annotationFile matches <numericPrefix>-<labelName>.txt
var annotationFile = regexp.MustCompile(`^\d+-(.+)\.txt$`)

// Cell is a single annotation value. A cell with Valid set to false is the missing marker.
type Cell struct {
	Value string
	Valid bool
}

// String returns the cell value, or MissingValue for the missing marker.
func (c Cell) String() string {
	if !c.Valid {
		return MissingValue
	}
	return c.Value
}

// Table holds the annotations of all labels indexed by image key.
// It is immutable once returned by Aggregate.
type Table struct {
	index   []string
	columns []string
	rows    map[string][]Cell
}

// labelColumn is the single column table parsed from one annotation file.
type labelColumn struct {
	label  string
	values map[string]string
}

// Index returns the sorted row keys of the table.
func (t *Table) Index() []string {
	return append([]string(nil), t.index...)
}

// Columns returns the label names in annotation file order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.index) }

// Cell returns the value of the given row and label.
// The second return value is false if the row or the label does not exist.
func (t *Table) Cell(row, label string) (Cell, bool) {
	cells, ok := t.rows[row]
	if !ok {
		return Cell{}, false
	}
	col := t.column(label)
	if col < 0 {
		return Cell{}, false
	}
	return cells[col], true
}

// Float returns the numeric value of a cell. Missing or non numeric cells return false.
func (t *Table) Float(row, label string) (float64, bool) {
	c, ok := t.Cell(row, label)
	if !ok || !c.Valid {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Restrict returns a new table holding only the rows of the given keys, in key order.
// Keys without annotations produce rows made of missing markers.
func (t *Table) Restrict(keys []ImageKey) *Table {
	res := &Table{
		columns: t.Columns(),
		rows:    make(map[string][]Cell, len(keys)),
	}
	for _, k := range keys {
		row := k.String()
		if _, dup := res.rows[row]; dup {
			continue
		}
		cells, ok := t.rows[row]
		if !ok {
			cells = make([]Cell, len(t.columns))
		}
		res.rows[row] = append([]Cell(nil), cells...)
		res.index = append(res.index, row)
	}
	sort.Strings(res.index)
	return res
}

// WriteTSV writes the table as tab separated values with a "key" header column.
func (t *Table) WriteTSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	if err := cw.Write(append([]string{"key"}, t.columns...)); err != nil {
		return err
	}
	record := make([]string, len(t.columns)+1)
	for _, row := range t.index {
		record[0] = row
		for i, c := range t.rows[row] {
			record[i+1] = c.String()
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (t *Table) column(label string) int {
	for i, c := range t.columns {
		if c == label {
			return i
		}
	}
	return -1
}

// Aggregate builds a single annotation table out of the per label files found in dir.
// Only the top level of dir is scanned. Hidden files and files without the .txt extension are ignored,
// while a .txt file not named <digits>-<label>.txt fails the whole aggregation.
func Aggregate(dir string) (*Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("annotations: %w", err)
	}

	var columns []labelColumn
	seen := make(map[string]string)

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".txt" {
			continue
		}

		label, err := labelName(name)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[label]; ok {
			return nil, &FileFormatError{File: name, Msg: fmt.Sprintf("label %q already defined by %s", label, prev)}
		}
		seen[label] = name

		col, err := readLabelFile(filepath.Join(dir, name), label)
		if err != nil {
			return nil, err
		}
		log.Debugf("annotations: read %d rows of label %s", len(col.values), label)
		columns = append(columns, col)
	}

	t := joinColumns(columns)
	log.Infof("annotations: aggregated %d labels over %d images", len(t.columns), len(t.index))

	return t, nil
}

// labelName extracts the label from an annotation file name.
func labelName(name string) (string, error) {
	m := annotationFile.FindStringSubmatch(name)
	if m == nil || m[1] == "" {
		return "", &FileFormatError{File: name, Msg: "file name does not match <digits>-<label>.txt"}
	}
	return m[1], nil
}

// readLabelFile parses a tab separated two column file. The first line is a header and is skipped.
func readLabelFile(fname, label string) (labelColumn, error) {
	col := labelColumn{label: label, values: make(map[string]string)}
	base := filepath.Base(fname)

	f, err := os.Open(fname)
	if err != nil {
		return col, fmt.Errorf("annotations: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header := true
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return col, &FileFormatError{File: base, Line: pe.Line, Msg: pe.Err.Error()}
			}
			return col, fmt.Errorf("annotations: %w", err)
		}
		line, _ := r.FieldPos(0)
		if header {
			header = false
			continue
		}
		if len(record) != 2 {
			return col, &FileFormatError{File: base, Line: line, Msg: fmt.Sprintf("expected 2 fields, got %d", len(record))}
		}
		key := record[0]
		if key == "" {
			return col, &FileFormatError{File: base, Line: line, Msg: "empty index"}
		}
		if _, dup := col.values[key]; dup {
			return col, &FileFormatError{File: base, Line: line, Msg: fmt.Sprintf("duplicate index %q", key)}
		}
		col.values[key] = record[1]
	}

	return col, nil
}

// joinColumns performs an outer join of the label columns on their index.
func joinColumns(columns []labelColumn) *Table {
	t := &Table{rows: make(map[string][]Cell)}

	for _, col := range columns {
		t.columns = append(t.columns, col.label)
		for key := range col.values {
			if _, ok := t.rows[key]; !ok {
				t.rows[key] = make([]Cell, len(columns))
				t.index = append(t.index, key)
			}
		}
	}

	for i, col := range columns {
		for key, v := range col.values {
			t.rows[key][i] = Cell{Value: v, Valid: true}
		}
	}
	sort.Strings(t.index)

	return t
}
