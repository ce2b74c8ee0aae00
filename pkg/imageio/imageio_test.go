package imageio

import (
	"math"
	"testing"

	"rodentprep/internal/models"
)

func constantVolume(dims [3]int, spacing [3]float64, value float64) *models.Volume {
	grid := models.Grid{Dims: dims, Spacing: spacing}
	vol := &models.Volume{Grid: grid, Data: make([]float64, grid.NumVoxels())}
	for i := range vol.Data {
		vol.Data[i] = value
	}
	return vol
}

// TestResampleToSpacingDims verifies the output dimensions follow the
// spacing ratio while the physical extent stays put.
func TestResampleToSpacingDims(t *testing.T) {
	vol := constantVolume([3]int{10, 8, 6}, [3]float64{0.5, 0.5, 1.0}, 1)

	out := ResampleToSpacing(vol, [3]float64{0.25, 1.0, 0.5})
	want := [3]int{20, 4, 12}
	if out.Grid.Dims != want {
		t.Fatalf("Expected dims %v, got %v", want, out.Grid.Dims)
	}
	if out.Grid.Spacing != [3]float64{0.25, 1.0, 0.5} {
		t.Errorf("Spacing not carried: %v", out.Grid.Spacing)
	}
	for i := 0; i < 3; i++ {
		if int(out.Header.Dim[i+1]) != want[i] {
			t.Errorf("Header dim %d not updated: %d", i+1, out.Header.Dim[i+1])
		}
	}
}

// TestResampleToSpacingConstant verifies interpolation of a constant
// field is exact.
func TestResampleToSpacingConstant(t *testing.T) {
	vol := constantVolume([3]int{6, 6, 6}, [3]float64{1, 1, 1}, 7.5)

	out := ResampleToSpacing(vol, [3]float64{0.4, 0.7, 1.3})
	for i, x := range out.Data {
		if math.Abs(x-7.5) > 1e-12 {
			t.Fatalf("Voxel %d: expected 7.5, got %v", i, x)
		}
	}
}

// TestResampleToSpacingLinearRamp verifies trilinear interpolation
// reproduces a linear ramp exactly at interior sample points.
func TestResampleToSpacingLinearRamp(t *testing.T) {
	grid := models.Grid{Dims: [3]int{8, 4, 4}, Spacing: [3]float64{1, 1, 1}}
	vol := &models.Volume{Grid: grid, Data: make([]float64, grid.NumVoxels())}
	for z := 0; z < 4; z++ {
		for y := 0; y < 4; y++ {
			for x := 0; x < 8; x++ {
				vol.Data[grid.Index(x, y, z)] = float64(x)
			}
		}
	}

	out := ResampleToSpacing(vol, [3]float64{0.5, 1, 1})
	if out.Grid.Dims[0] != 16 {
		t.Fatalf("Expected 16 samples along x, got %d", out.Grid.Dims[0])
	}
	// Inside the ramp every half-step lands between two integer values.
	for x := 0; x < 14; x++ {
		got := out.Data[out.Grid.Index(x, 1, 1)]
		want := float64(x) * 0.5
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("Sample %d: expected %v, got %v", x, want, got)
		}
	}
}

// TestResampleToSpacingMinimumDim verifies coarse spacing never produces
// an empty axis.
func TestResampleToSpacingMinimumDim(t *testing.T) {
	vol := constantVolume([3]int{2, 2, 2}, [3]float64{0.1, 0.1, 0.1}, 1)
	out := ResampleToSpacing(vol, [3]float64{10, 10, 10})
	if out.Grid.Dims != [3]int{1, 1, 1} {
		t.Fatalf("Expected 1x1x1, got %v", out.Grid.Dims)
	}
}
