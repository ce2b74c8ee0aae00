package models

import (
	"math"

	"github.com/KyungWonPark/nifti"
)

// Grid defines where a volume's samples lie in physical space: the voxel
// dimensions along each spatial axis and the voxel spacing in mm.
type Grid struct {
	// Dims is the number of voxels along x, y and z
	Dims [3]int

	// Spacing is the physical voxel size along x, y and z in mm
	Spacing [3]float64
}

// spacingTol absorbs float32 round-trips through NIfTI headers
const spacingTol = 1e-4

// NumVoxels returns the total voxel count of one 3D volume on this grid.
func (g Grid) NumVoxels() int {
	return g.Dims[0] * g.Dims[1] * g.Dims[2]
}

// Index returns the linear index of voxel (x, y, z), x varying fastest
// as in the NIfTI data layout.
func (g Grid) Index(x, y, z int) int {
	return (z*g.Dims[1]+y)*g.Dims[0] + x
}

// Equal reports whether two grids describe the same sampling: identical
// dimensions and voxel spacing within tolerance.
func (g Grid) Equal(o Grid) bool {
	if g.Dims != o.Dims {
		return false
	}
	for i := 0; i < 3; i++ {
		if math.Abs(g.Spacing[i]-o.Spacing[i]) > spacingTol {
			return false
		}
	}
	return true
}

// Volume is a single 3D scalar volume with its grid and the NIfTI header
// it was loaded with. The header travels along as the metadata donor for
// persistence; voxel data is never reinterpreted through it.
type Volume struct {
	Grid   Grid
	Header nifti.Nifti1Header

	// Data holds voxel intensities in x-fastest order, len = NumVoxels
	Data []float64
}

// TimeSeries is an ordered sequence of 3D volumes sharing one grid.
// Stacks[t][k] is the k-th transform-candidate volume of frame t; plain
// rank-4 series carry exactly one candidate per frame. Frame order is
// temporal and significant.
type TimeSeries struct {
	Grid   Grid
	Header nifti.Nifti1Header

	// Rank is 4 for a plain time series, 5 when each frame stacks
	// several transform-candidate volumes
	Rank int

	Stacks [][][]float64
}

// NumFrames returns the number of time points.
func (ts *TimeSeries) NumFrames() int {
	return len(ts.Stacks)
}

// CandidatesPerFrame returns the stack depth k of each frame (1 for rank 4).
func (ts *TimeSeries) CandidatesPerFrame() int {
	if len(ts.Stacks) == 0 {
		return 0
	}
	return len(ts.Stacks[0])
}

// Frame returns the primary volume data of frame t.
func (ts *TimeSeries) Frame(t int) []float64 {
	return ts.Stacks[t][0]
}

// FrameVolume wraps frame t's primary data as a standalone Volume sharing
// the series grid and header.
func (ts *TimeSeries) FrameVolume(t int) *Volume {
	return &Volume{Grid: ts.Grid, Header: ts.Header, Data: ts.Stacks[t][0]}
}

// MotionParams holds the per-frame rigid-body parameters estimated by the
// motion-correction solver: 3 translations and 3 rotations per frame,
// aligned 1:1 with the frames of the series they were estimated from.
type MotionParams struct {
	// Params is t rows of 6 values in the solver's column order
	Params [][]float64
}

// NumFrames returns the number of rows.
func (m *MotionParams) NumFrames() int {
	return len(m.Params)
}
