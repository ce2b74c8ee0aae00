package confound

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"rodentprep/internal/models"
)

// Component-selection methods for aCompCor.
const (
	// MethodVarianceThreshold accepts components in descending
	// explained-variance order until the cumulative ratio strictly
	// exceeds the threshold (the crossing component is included).
	MethodVarianceThreshold = "variance_threshold"

	// MethodFixedCount takes exactly the top FixedCount components.
	MethodFixedCount = "fixed_count"
)

// CompCorPolicy selects how many principal components to keep.
type CompCorPolicy struct {
	Method            string
	VarianceThreshold float64
	FixedCount        int
}

// DefaultCompCorPolicy is the 50% explained-variance rule of
// Muschelli et al. 2014.
func DefaultCompCorPolicy() CompCorPolicy {
	return CompCorPolicy{
		Method:            MethodVarianceThreshold,
		VarianceThreshold: 0.5,
		FixedCount:        5,
	}
}

// UnderdeterminedError reports a mask with too few voxels to support the
// requested component count.
type UnderdeterminedError struct {
	Voxels, Components int
}

func (e *UnderdeterminedError) Error() string {
	return fmt.Sprintf("aCompCor needs at least %d mask voxels for %d components, have %d",
		e.Components, e.Components, e.Voxels)
}

// CompCorResult holds the selected component time-courses, one slice per
// component, each aligned with the series frames.
type CompCorResult struct {
	Components [][]float64
	Count      int
}

// CompCor extracts the leading decorrelated components of the detrended,
// standardized voxel-time data inside a tissue mask. The normalization is
// mandatory before the decomposition: without it high-variance voxels
// would dominate the components regardless of tissue relevance.
func CompCor(series *models.TimeSeries, mask *models.Volume, policy CompCorPolicy) (*CompCorResult, error) {
	if !mask.Grid.Equal(series.Grid) {
		return nil, &GridMismatchError{Series: series.Grid, Mask: mask.Grid}
	}
	idx := maskIndices(mask)
	nv := len(idx)
	t := series.NumFrames()
	if policy.Method == MethodFixedCount && nv < policy.FixedCount {
		return nil, &UnderdeterminedError{Voxels: nv, Components: policy.FixedCount}
	}
	if nv < 1 || t < 2 {
		return nil, &UnderdeterminedError{Voxels: nv, Components: 1}
	}

	x := maskedTimeVoxelMatrix(series, idx)

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, fmt.Errorf("aCompCor: principal component decomposition failed")
	}
	vars := pc.VarsTo(nil)

	var count int
	switch policy.Method {
	case MethodFixedCount:
		count = policy.FixedCount
	case MethodVarianceThreshold:
		count = countForVariance(vars, policy.VarianceThreshold)
	default:
		return nil, fmt.Errorf("aCompCor: unknown selection method %q", policy.Method)
	}
	if count > len(vars) || count > nv {
		return nil, &UnderdeterminedError{Voxels: nv, Components: count}
	}

	// The count selection above only needed the variances; the returned
	// time-courses are the unconstrained top-count projection.
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	var proj mat.Dense
	proj.Mul(x, vecs.Slice(0, nv, 0, count))

	comps := make([][]float64, count)
	for c := 0; c < count; c++ {
		comps[c] = make([]float64, t)
		for i := 0; i < t; i++ {
			comps[c][i] = proj.At(i, c)
		}
	}
	return &CompCorResult{Components: comps, Count: count}, nil
}

// maskedTimeVoxelMatrix builds the time x voxel matrix of mask voxels,
// each voxel's time course linearly detrended and standardized to zero
// mean and unit variance.
func maskedTimeVoxelMatrix(series *models.TimeSeries, idx []int) *mat.Dense {
	t := series.NumFrames()
	x := mat.NewDense(t, len(idx), nil)

	times := make([]float64, t)
	for i := range times {
		times[i] = float64(i)
	}
	course := make([]float64, t)

	for j, v := range idx {
		for i := 0; i < t; i++ {
			course[i] = series.Frame(i)[v]
		}
		alpha, beta := stat.LinearRegression(times, course, nil, false)
		for i := range course {
			course[i] -= alpha + beta*times[i]
		}
		mean, std := stat.MeanStdDev(course, nil)
		for i := range course {
			if std > 0 {
				x.Set(i, j, (course[i]-mean)/std)
			} else {
				x.Set(i, j, 0)
			}
		}
	}
	return x
}

// countForVariance accepts components until the cumulative explained
// variance strictly exceeds the threshold.
func countForVariance(vars []float64, threshold float64) int {
	var total float64
	for _, v := range vars {
		total += v
	}
	if total == 0 {
		return 1
	}
	var cum float64
	count := 0
	for cum <= threshold && count < len(vars) {
		cum += vars[count] / total
		count++
	}
	return count
}
