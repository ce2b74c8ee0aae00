// Package volume converts between 4D/5D time series and ordered sequences
// of 3D frames, and provides voxel-wise reductions over frames.
package volume

import (
	"fmt"
	"sort"

	"rodentprep/internal/models"
)

// DimensionError reports a volumetric input whose rank is not 4 or 5.
type DimensionError struct {
	Rank int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("input must be of rank 4 or 5, got %d", e.Rank)
}

// CountMismatchError reports a disagreement between the number of volumes
// requested for a merge and the number successfully combined.
type CountMismatchError struct {
	Want, Got int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("merge expected %d volumes, combined %d", e.Want, e.Got)
}

// FrameUnit is one frame's stack of candidate volumes after a split. A
// rank-4 series yields one volume per unit.
type FrameUnit struct {
	Volumes []*models.Volume
}

// Split decomposes a series into per-frame units carrying the original
// grid metadata. Voxel data is shared with the input, not copied. Fails
// with a DimensionError if the series rank is not 4 or 5.
func Split(ts *models.TimeSeries) ([]FrameUnit, error) {
	if ts.Rank != 4 && ts.Rank != 5 {
		return nil, &DimensionError{Rank: ts.Rank}
	}
	units := make([]FrameUnit, ts.NumFrames())
	for t := range ts.Stacks {
		vols := make([]*models.Volume, len(ts.Stacks[t]))
		for u, data := range ts.Stacks[t] {
			vols[u] = &models.Volume{Grid: ts.Grid, Header: ts.Header, Data: data}
		}
		units[t] = FrameUnit{Volumes: vols}
	}
	return units, nil
}

// Merge combines an ordered sequence of 3D volumes into a rank-4 series
// whose grid and header metadata are copied from the donor. Entries that
// are nil or disagree with the donor grid are not combined; any shortfall
// against the requested count is a CountMismatchError rather than a
// silent truncation.
func Merge(vols []*models.Volume, donor *models.TimeSeries) (*models.TimeSeries, error) {
	want := len(vols)
	stacks := make([][][]float64, 0, want)
	for _, v := range vols {
		if v == nil || !v.Grid.Equal(donor.Grid) {
			continue
		}
		stacks = append(stacks, [][]float64{v.Data})
	}
	if len(stacks) != want {
		return nil, &CountMismatchError{Want: want, Got: len(stacks)}
	}
	return &models.TimeSeries{Grid: donor.Grid, Header: donor.Header, Rank: 4, Stacks: stacks}, nil
}

// MergeUnits reassembles split frame units into a series of the donor's
// rank, the inverse of Split. Every unit must carry the same stack depth.
func MergeUnits(units []FrameUnit, donor *models.TimeSeries) (*models.TimeSeries, error) {
	want := len(units)
	k := donor.CandidatesPerFrame()
	stacks := make([][][]float64, 0, want)
	for _, u := range units {
		if len(u.Volumes) != k {
			continue
		}
		ok := true
		stack := make([][]float64, k)
		for i, v := range u.Volumes {
			if v == nil || !v.Grid.Equal(donor.Grid) {
				ok = false
				break
			}
			stack[i] = v.Data
		}
		if !ok {
			continue
		}
		stacks = append(stacks, stack)
	}
	if len(stacks) != want {
		return nil, &CountMismatchError{Want: want, Got: len(stacks)}
	}
	return &models.TimeSeries{Grid: donor.Grid, Header: donor.Header, Rank: donor.Rank, Stacks: stacks}, nil
}

// MedianVolume computes the voxel-wise median over frames [start, end) of
// a series. The bounds are clamped to the available frames.
func MedianVolume(ts *models.TimeSeries, start, end int) *models.Volume {
	if start < 0 {
		start = 0
	}
	if end > ts.NumFrames() {
		end = ts.NumFrames()
	}
	n := end - start
	out := &models.Volume{Grid: ts.Grid, Header: ts.Header, Data: make([]float64, ts.Grid.NumVoxels())}
	if n <= 0 {
		return out
	}
	buf := make([]float64, n)
	for v := range out.Data {
		for t := 0; t < n; t++ {
			buf[t] = ts.Frame(start + t)[v]
		}
		out.Data[v] = median(buf)
	}
	return out
}

// median sorts a scratch copy in place; callers reuse the buffer.
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}

// Window returns the sub-series of frames [start, end), sharing voxel
// data with the input. Bounds are clamped.
func Window(ts *models.TimeSeries, start, end int) *models.TimeSeries {
	if start < 0 {
		start = 0
	}
	if end > ts.NumFrames() {
		end = ts.NumFrames()
	}
	if end < start {
		end = start
	}
	return &models.TimeSeries{
		Grid:   ts.Grid,
		Header: ts.Header,
		Rank:   ts.Rank,
		Stacks: ts.Stacks[start:end],
	}
}

// MeanTrace computes the global mean signal of frames [start, end), one
// value per frame.
func MeanTrace(ts *models.TimeSeries, start, end int) []float64 {
	if start < 0 {
		start = 0
	}
	if end > ts.NumFrames() {
		end = ts.NumFrames()
	}
	if end <= start {
		return nil
	}
	trace := make([]float64, end-start)
	nv := float64(ts.Grid.NumVoxels())
	for t := start; t < end; t++ {
		var sum float64
		for _, x := range ts.Frame(t) {
			sum += x
		}
		trace[t-start] = sum / nv
	}
	return trace
}
