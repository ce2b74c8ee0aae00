package confound

import (
	"errors"
	"math"
	"testing"

	"rodentprep/internal/models"
)

// newCompCorSeries builds a 40-voxel series with a known variance
// structure: two orthogonal dominant patterns shared by 18 voxels each,
// plus 4 voxels of independent oscillations. After standardization the
// two patterns each explain about 45% of the variance, so together they
// cross the 50% threshold while neither does alone.
func newCompCorSeries(frames int) *models.TimeSeries {
	grid := models.Grid{Dims: [3]int{5, 4, 2}, Spacing: [3]float64{0.3, 0.3, 0.3}}
	stacks := make([][][]float64, frames)
	for i := 0; i < frames; i++ {
		phase := 2 * math.Pi * float64(i) / 20
		a := math.Sin(phase)
		b := math.Cos(phase)
		data := make([]float64, grid.NumVoxels())
		for v := range data {
			switch {
			case v < 18:
				data[v] = a + 1e-3*math.Sin(float64(i)*float64(v+3)*0.77)
			case v < 36:
				data[v] = b + 1e-3*math.Sin(float64(i)*float64(v+5)*0.59)
			default:
				data[v] = math.Sin(float64(i) * float64(v-33) * 1.13)
			}
		}
		stacks[i] = [][]float64{data}
	}
	return &models.TimeSeries{Grid: grid, Rank: 4, Stacks: stacks}
}

func fullMask(series *models.TimeSeries) *models.Volume {
	mask := &models.Volume{Grid: series.Grid, Data: make([]float64, series.Grid.NumVoxels())}
	for v := range mask.Data {
		mask.Data[v] = 1
	}
	return mask
}

// TestCompCorVarianceThreshold verifies the 50% rule selects exactly the
// two dominant components on the synthetic variance distribution.
func TestCompCorVarianceThreshold(t *testing.T) {
	series := newCompCorSeries(60)
	policy := DefaultCompCorPolicy()

	res, err := CompCor(series, fullMask(series), policy)
	if err != nil {
		t.Fatalf("CompCor failed: %v", err)
	}
	if res.Count != 2 {
		t.Fatalf("Expected 2 components under the 50%% rule, got %d", res.Count)
	}
	if len(res.Components) != 2 {
		t.Fatalf("Count and component slice disagree: %d vs %d", res.Count, len(res.Components))
	}
	for i, c := range res.Components {
		if len(c) != 60 {
			t.Errorf("Component %d has length %d, want 60", i, len(c))
		}
	}
}

// TestCompCorFixedCount verifies fixed_count returns exactly 5 components
// regardless of the variance distribution.
func TestCompCorFixedCount(t *testing.T) {
	series := newCompCorSeries(60)
	policy := CompCorPolicy{Method: MethodFixedCount, FixedCount: 5}

	res, err := CompCor(series, fullMask(series), policy)
	if err != nil {
		t.Fatalf("CompCor failed: %v", err)
	}
	if res.Count != 5 || len(res.Components) != 5 {
		t.Fatalf("Expected exactly 5 components, got %d", res.Count)
	}
}

// TestCompCorUnderdetermined verifies that a mask smaller than the
// requested component count fails instead of degrading silently.
func TestCompCorUnderdetermined(t *testing.T) {
	series := newCompCorSeries(60)
	mask := &models.Volume{Grid: series.Grid, Data: make([]float64, series.Grid.NumVoxels())}
	mask.Data[0], mask.Data[1], mask.Data[2] = 1, 1, 1

	_, err := CompCor(series, mask, CompCorPolicy{Method: MethodFixedCount, FixedCount: 5})
	var underErr *UnderdeterminedError
	if !errors.As(err, &underErr) {
		t.Fatalf("Expected UnderdeterminedError, got %v", err)
	}
	if underErr.Voxels != 3 || underErr.Components != 5 {
		t.Errorf("Expected 3 voxels / 5 components, got %d/%d", underErr.Voxels, underErr.Components)
	}
}

// TestCompCorGridMismatch verifies the mask grid contract.
func TestCompCorGridMismatch(t *testing.T) {
	series := newCompCorSeries(30)
	mask := fullMask(series)
	mask.Grid.Dims = [3]int{4, 5, 2}

	_, err := CompCor(series, mask, DefaultCompCorPolicy())
	var gridErr *GridMismatchError
	if !errors.As(err, &gridErr) {
		t.Fatalf("Expected GridMismatchError, got %v", err)
	}
}

// TestCompCorComponentsDecorrelated verifies the returned time-courses
// are mutually orthogonal, as principal component scores must be.
func TestCompCorComponentsDecorrelated(t *testing.T) {
	series := newCompCorSeries(60)
	res, err := CompCor(series, fullMask(series), DefaultCompCorPolicy())
	if err != nil {
		t.Fatalf("CompCor failed: %v", err)
	}

	var dot, n0, n1 float64
	for i := range res.Components[0] {
		dot += res.Components[0][i] * res.Components[1][i]
		n0 += res.Components[0][i] * res.Components[0][i]
		n1 += res.Components[1][i] * res.Components[1][i]
	}
	if n0 == 0 || n1 == 0 {
		t.Fatal("Degenerate component norms")
	}
	if cos := math.Abs(dot) / math.Sqrt(n0*n1); cos > 1e-6 {
		t.Errorf("Components not orthogonal, |cos| = %v", cos)
	}
}
