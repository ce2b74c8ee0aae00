package confound

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/kshedden/gonpy"
)

// ShapeMismatchError reports confound sources that disagree on frame
// count. The offending column is named so the failure is reproducible.
type ShapeMismatchError struct {
	Column string
	Want   int
	Got    int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("confound column %s has %d frames, expected %d", e.Column, e.Got, e.Want)
}

// Sources are the signal traces feeding one confound matrix. All must
// share the frame count of the series they were derived from.
type Sources struct {
	WMSignal      []float64
	WMComponents  [][]float64
	CSFSignal     []float64
	CSFComponents [][]float64
	GlobalSignal  []float64

	// Motion24 is frames x 24, from ExpandMotion24
	Motion24 [][]float64
}

// Matrix is the assembled confound table: rows are frames, columns are
// named regressors in the fixed external order.
type Matrix struct {
	Columns []string
	Rows    [][]float64
}

// Build assembles the table in the fixed column order: white-matter mean
// signal, white-matter components, CSF mean signal, CSF components,
// whole-brain global signal, then the 24 expanded motion regressors.
// Frame-count disagreement is fatal; no cell is ever imputed.
func Build(s Sources) (*Matrix, error) {
	t := len(s.WMSignal)
	if t == 0 {
		return nil, &ShapeMismatchError{Column: "WM_signal", Want: 1, Got: 0}
	}

	type column struct {
		name   string
		values []float64
	}
	cols := []column{{"WM_signal", s.WMSignal}}
	for i, c := range s.WMComponents {
		cols = append(cols, column{fmt.Sprintf("WM_comp%d", i+1), c})
	}
	cols = append(cols, column{"CSF_signal", s.CSFSignal})
	for i, c := range s.CSFComponents {
		cols = append(cols, column{fmt.Sprintf("CSF_comp%d", i+1), c})
	}
	cols = append(cols, column{"global_signal", s.GlobalSignal})

	if len(s.Motion24) != t {
		return nil, &ShapeMismatchError{Column: Motion24Columns[0], Want: t, Got: len(s.Motion24)}
	}
	for j, name := range Motion24Columns {
		values := make([]float64, t)
		for i, row := range s.Motion24 {
			if len(row) != len(Motion24Columns) {
				return nil, &ShapeMismatchError{Column: name, Want: len(Motion24Columns), Got: len(row)}
			}
			values[i] = row[j]
		}
		cols = append(cols, column{name, values})
	}

	m := &Matrix{Columns: make([]string, len(cols)), Rows: make([][]float64, t)}
	for i := range m.Rows {
		m.Rows[i] = make([]float64, len(cols))
	}
	for j, c := range cols {
		if len(c.values) != t {
			return nil, &ShapeMismatchError{Column: c.name, Want: t, Got: len(c.values)}
		}
		m.Columns[j] = c.name
		for i, v := range c.values {
			m.Rows[i][j] = v
		}
	}
	return m, nil
}

// WriteCSV persists the table with a header row and a leading frame
// index column.
func (m *Matrix) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("confound csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{""}, m.Columns...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("confound csv: %w", err)
	}
	record := make([]string, len(m.Columns)+1)
	for i, row := range m.Rows {
		record[0] = strconv.Itoa(i)
		for j, v := range row {
			record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("confound csv: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteNpy persists the table body (without index or names) as a
// frames x columns float64 .npy array.
func (m *Matrix) WriteNpy(path string) error {
	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("confound npy: %w", err)
	}
	w.Shape = []int{len(m.Rows), len(m.Columns)}
	flat := make([]float64, 0, len(m.Rows)*len(m.Columns))
	for _, row := range m.Rows {
		flat = append(flat, row...)
	}
	if err := w.WriteFloat64(flat); err != nil {
		return fmt.Errorf("confound npy: %w", err)
	}
	return nil
}
