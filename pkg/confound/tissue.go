// Package confound builds the per-run confound design matrix: tissue
// compartment signals, anatomical component correction (aCompCor) and the
// 24-regressor motion expansion, assembled into one aligned table.
package confound

import (
	"fmt"

	"rodentprep/internal/models"
)

// GridMismatchError reports a mask applied to data on a different grid.
// A mismatch is an error condition, never a silent resample.
type GridMismatchError struct {
	Series models.Grid
	Mask   models.Grid
}

func (e *GridMismatchError) Error() string {
	return fmt.Sprintf("mask grid %v/%v does not match series grid %v/%v",
		e.Mask.Dims, e.Mask.Spacing, e.Series.Dims, e.Series.Spacing)
}

// maskIndices returns the linear indices of the nonzero mask voxels.
func maskIndices(mask *models.Volume) []int {
	var idx []int
	for v, x := range mask.Data {
		if x > 0 {
			idx = append(idx, v)
		}
	}
	return idx
}

// MaskTrace returns the mean intra-mask signal at each time point. The
// mask must be binary and share the series grid.
func MaskTrace(series *models.TimeSeries, mask *models.Volume) ([]float64, error) {
	if !mask.Grid.Equal(series.Grid) {
		return nil, &GridMismatchError{Series: series.Grid, Mask: mask.Grid}
	}
	idx := maskIndices(mask)
	if len(idx) == 0 {
		return nil, fmt.Errorf("mask trace: mask contains no voxels")
	}

	trace := make([]float64, series.NumFrames())
	for t := range trace {
		frame := series.Frame(t)
		var sum float64
		for _, v := range idx {
			sum += frame[v]
		}
		trace[t] = sum / float64(len(idx))
	}
	return trace, nil
}
