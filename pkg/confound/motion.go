package confound

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"rodentprep/internal/models"
)

// ParseError reports a malformed motion-parameter table.
type ParseError struct {
	Path string
	Row  int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("motion parameters %s row %d: %s", e.Path, e.Row, e.Msg)
}

// rigidParams is the fixed number of rigid-body parameters per frame.
const rigidParams = 6

// ParseMotionParams reads the solver's MOCO table: one row per frame, a
// header row, two leading non-numeric identifier columns, then the 6
// rigid parameters in fixed order. Any row or column count disagreement
// is a ParseError.
func ParseMotionParams(path string) (*models.MotionParams, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("motion parameters: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, &ParseError{Path: path, Row: 0, Msg: err.Error()}
	}
	if len(rows) < 2 {
		return nil, &ParseError{Path: path, Row: 0, Msg: "no parameter rows"}
	}

	params := make([][]float64, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != rigidParams+2 {
			return nil, &ParseError{Path: path, Row: i + 1,
				Msg: fmt.Sprintf("expected %d columns, got %d", rigidParams+2, len(row))}
		}
		frame := make([]float64, rigidParams)
		for j, field := range row[2:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, &ParseError{Path: path, Row: i + 1,
					Msg: fmt.Sprintf("column %d: %v", j+2, err)}
			}
			frame[j] = v
		}
		params = append(params, frame)
	}
	return &models.MotionParams{Params: params}, nil
}

// Motion24Columns names the expanded regressors in their fixed order:
// raw, one-frame lag, raw squared, lag squared (Friston et al., 1996).
var Motion24Columns = []string{
	"mov1", "mov2", "mov3", "rot1", "rot2", "rot3",
	"mov1-1", "mov2-1", "mov3-1", "rot1-1", "rot2-1", "rot3-1",
	"mov1^2", "mov2^2", "mov3^2", "rot1^2", "rot2^2", "rot3^2",
	"mov1-1^2", "mov2-1^2", "mov3-1^2", "rot1-1^2", "rot2-1^2", "rot3-1^2",
}

// ExpandMotion24 expands the 6 rigid parameters into the 24-regressor
// autoregressive/quadratic basis: columns 0-5 raw, 6-11 lagged by one
// frame (frame 0 lags onto its own value by definition), 12-17 raw
// squared, 18-23 lagged squared. Deterministic, no randomness.
func ExpandMotion24(m *models.MotionParams) ([][]float64, error) {
	t := m.NumFrames()
	if t == 0 {
		return nil, fmt.Errorf("motion expansion: empty parameter set")
	}
	for i, row := range m.Params {
		if len(row) != rigidParams {
			return nil, fmt.Errorf("motion expansion: frame %d has %d parameters, want %d",
				i, len(row), rigidParams)
		}
	}

	out := make([][]float64, t)
	for i := range out {
		out[i] = make([]float64, 24)
		lagRow := i - 1
		if lagRow < 0 {
			lagRow = 0
		}
		for j := 0; j < rigidParams; j++ {
			raw := m.Params[i][j]
			lag := m.Params[lagRow][j]
			out[i][j] = raw
			out[i][6+j] = lag
			out[i][12+j] = raw * raw
			out[i][18+j] = lag * lag
		}
	}
	return out, nil
}
