package confound

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"rodentprep/internal/models"
)

func newTestMotionParams(frames int) *models.MotionParams {
	params := make([][]float64, frames)
	for i := range params {
		params[i] = make([]float64, 6)
		for j := range params[i] {
			params[i][j] = float64(i) + float64(j)/10
		}
	}
	return &models.MotionParams{Params: params}
}

// TestExpandMotion24Shape verifies the output is exactly t rows of 24
// columns.
func TestExpandMotion24Shape(t *testing.T) {
	out, err := ExpandMotion24(newTestMotionParams(17))
	if err != nil {
		t.Fatalf("ExpandMotion24 failed: %v", err)
	}
	if len(out) != 17 {
		t.Fatalf("Expected 17 rows, got %d", len(out))
	}
	for i, row := range out {
		if len(row) != 24 {
			t.Fatalf("Row %d has %d columns, want 24", i, len(row))
		}
	}
	if len(Motion24Columns) != 24 {
		t.Fatalf("Expected 24 column names, got %d", len(Motion24Columns))
	}
}

// TestExpandMotion24Laws verifies the lag boundary policy and the
// squared blocks.
func TestExpandMotion24Laws(t *testing.T) {
	m := newTestMotionParams(9)
	out, err := ExpandMotion24(m)
	if err != nil {
		t.Fatalf("ExpandMotion24 failed: %v", err)
	}

	// Frame 0's lag value equals its own value, by definition.
	for j := 0; j < 6; j++ {
		if out[0][6+j] != out[0][j] {
			t.Errorf("Lag boundary broken at column %d: %v vs %v", j, out[0][6+j], out[0][j])
		}
	}
	// Later frames lag by exactly one.
	for i := 1; i < len(out); i++ {
		for j := 0; j < 6; j++ {
			if out[i][6+j] != m.Params[i-1][j] {
				t.Errorf("Frame %d column %d lag mismatch", i, j)
			}
		}
	}
	// Columns 12-17 are the raw parameters squared, 18-23 the lag squared.
	for i := range out {
		for j := 0; j < 6; j++ {
			if out[i][12+j] != out[i][j]*out[i][j] {
				t.Errorf("Frame %d raw square mismatch at column %d", i, j)
			}
			if out[i][18+j] != out[i][6+j]*out[i][6+j] {
				t.Errorf("Frame %d lag square mismatch at column %d", i, j)
			}
		}
	}
}

// TestParseMotionParams verifies the MOCO table layout: header row, two
// identifier columns, then the 6 rigid parameters.
func TestParseMotionParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "motcorrMOCOparams.csv")
	content := "Index,MetricValue,x1,x2,x3,y1,y2,y3\n" +
		"0,-0.9,0.1,0.2,0.3,0.01,0.02,0.03\n" +
		"1,-0.8,0.2,0.3,0.4,0.02,0.03,0.04\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := ParseMotionParams(path)
	if err != nil {
		t.Fatalf("ParseMotionParams failed: %v", err)
	}
	if m.NumFrames() != 2 {
		t.Fatalf("Expected 2 frames, got %d", m.NumFrames())
	}
	if m.Params[0][0] != 0.1 || m.Params[1][5] != 0.04 {
		t.Errorf("Parameter values misread: %v", m.Params)
	}
}

// TestParseMotionParamsMalformed verifies the ParseError contract for
// column-count and value failures.
func TestParseMotionParamsMalformed(t *testing.T) {
	cases := map[string]string{
		"short row":   "Index,MetricValue,x1,x2,x3,y1,y2,y3\n0,-0.9,0.1,0.2\n",
		"bad value":   "Index,MetricValue,x1,x2,x3,y1,y2,y3\n0,-0.9,0.1,0.2,0.3,0.01,0.02,oops\n",
		"header only": "Index,MetricValue,x1,x2,x3,y1,y2,y3\n",
	}
	for name, content := range cases {
		path := filepath.Join(t.TempDir(), "params.csv")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := ParseMotionParams(path)
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("%s: expected ParseError, got %v", name, err)
		}
	}
}
