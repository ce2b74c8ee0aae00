// Package imageio loads and saves NIfTI-1 volumes and time series,
// carrying grid metadata between files and the in-memory model types.
package imageio

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/KyungWonPark/nifti"

	"rodentprep/internal/models"
)

// gridFromHeader derives the spatial grid from a NIfTI header.
func gridFromHeader(hdr nifti.Nifti1Header) models.Grid {
	return models.Grid{
		Dims: [3]int{int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])},
		Spacing: [3]float64{
			float64(hdr.Pixdim[1]),
			float64(hdr.Pixdim[2]),
			float64(hdr.Pixdim[3]),
		},
	}
}

// LoadVolume reads a single 3D volume. A 4D file with one frame is
// accepted since some tools emit averages that way.
func LoadVolume(path string) (*models.Volume, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("volume %s: %w", path, err)
	}
	var img nifti.Nifti1Image
	img.LoadImage(path, true)
	hdr := img.GetHeader()

	rank := int(hdr.Dim[0])
	if rank != 3 && !(rank == 4 && hdr.Dim[4] == 1) {
		return nil, fmt.Errorf("volume %s: expected a 3D image, got rank %d", path, rank)
	}

	grid := gridFromHeader(hdr)
	data := make([]float64, grid.NumVoxels())
	readFrame(&img, grid, 0, data)

	return &models.Volume{Grid: grid, Header: hdr, Data: data}, nil
}

// LoadTimeSeries reads a 4D series, or a 5D file whose trailing axis
// stacks transform-candidate volumes per frame.
func LoadTimeSeries(path string) (*models.TimeSeries, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("series %s: %w", path, err)
	}
	var img nifti.Nifti1Image
	img.LoadImage(path, true)
	hdr := img.GetHeader()

	rank := int(hdr.Dim[0])
	if rank != 4 && rank != 5 {
		return nil, fmt.Errorf("series %s: expected rank 4 or 5, got %d", path, rank)
	}

	grid := gridFromHeader(hdr)
	nt := int(hdr.Dim[4])
	k := 1
	if rank == 5 {
		k = int(hdr.Dim[5])
	}
	if nt < 1 || k < 1 {
		return nil, fmt.Errorf("series %s: empty time or candidate axis", path)
	}

	stacks := make([][][]float64, nt)
	for t := 0; t < nt; t++ {
		stacks[t] = make([][]float64, k)
		for u := 0; u < k; u++ {
			data := make([]float64, grid.NumVoxels())
			// The candidate axis is contiguous after time in the NIfTI
			// voxel buffer, so candidate u of frame t sits at flat time
			// index u*nt+t.
			readFrame(&img, grid, u*nt+t, data)
			stacks[t][u] = data
		}
	}

	return &models.TimeSeries{Grid: grid, Header: hdr, Rank: rank, Stacks: stacks}, nil
}

func readFrame(img *nifti.Nifti1Image, grid models.Grid, t int, dst []float64) {
	for z := 0; z < grid.Dims[2]; z++ {
		for y := 0; y < grid.Dims[1]; y++ {
			for x := 0; x < grid.Dims[0]; x++ {
				dst[grid.Index(x, y, z)] = float64(img.GetAt(uint32(x), uint32(y), uint32(z), uint32(t)))
			}
		}
	}
}

// SaveVolume writes a 3D volume, donating the carried header metadata.
func SaveVolume(vol *models.Volume, path string) error {
	return SaveStack([]*models.Volume{vol}, path)
}

// SaveStack writes an ordered list of 3D volumes sharing one grid as a
// single file with one trailing axis. A one-element stack produces a 3D
// image, longer stacks a 4D image.
func SaveStack(vols []*models.Volume, path string) error {
	if len(vols) == 0 {
		return fmt.Errorf("save %s: empty stack", path)
	}
	grid := vols[0].Grid
	for i, v := range vols {
		if !v.Grid.Equal(grid) {
			return fmt.Errorf("save %s: volume %d grid differs from volume 0", path, i)
		}
	}

	img := nifti.NewImg(grid.Dims[0], grid.Dims[1], grid.Dims[2], len(vols))
	// SetHeaderDim resets the pixdims, so it must run before the stamped
	// donor header is installed.
	img.SetHeaderDim(grid.Dims[0], grid.Dims[1], grid.Dims[2], len(vols))
	img.SetNewHeader(donorHeader(img, vols[0].Header, grid))

	for t, v := range vols {
		writeFrame(img, grid, t, v.Data)
	}
	// nifti's Save appends ".gz" to the name it is given.
	img.Save(strings.TrimSuffix(path, ".gz"))
	return nil
}

// SaveTimeSeries writes a rank-4 series.
func SaveTimeSeries(ts *models.TimeSeries, path string) error {
	if ts.CandidatesPerFrame() != 1 {
		return fmt.Errorf("save %s: only plain rank-4 series can be persisted", path)
	}
	img := nifti.NewImg(ts.Grid.Dims[0], ts.Grid.Dims[1], ts.Grid.Dims[2], ts.NumFrames())
	// SetHeaderDim resets the pixdims, so it must run before the stamped
	// donor header is installed.
	img.SetHeaderDim(ts.Grid.Dims[0], ts.Grid.Dims[1], ts.Grid.Dims[2], ts.NumFrames())
	img.SetNewHeader(donorHeader(img, ts.Header, ts.Grid))

	for t := 0; t < ts.NumFrames(); t++ {
		writeFrame(img, ts.Grid, t, ts.Frame(t))
	}
	// nifti's Save appends ".gz" to the name it is given.
	img.Save(strings.TrimSuffix(path, ".gz"))
	return nil
}

// donorHeader selects the header a written file should carry. Volumes
// loaded from disk donate their own header; volumes assembled in memory
// carry a zero header and fall back to the constructor's. The spatial
// pixdims are always stamped from the grid so a round-trip preserves it.
func donorHeader(img *nifti.Nifti1Image, hdr nifti.Nifti1Header, grid models.Grid) nifti.Nifti1Header {
	if hdr.Dim[0] == 0 {
		hdr = img.GetHeader()
	}
	for i := 0; i < 3; i++ {
		hdr.Pixdim[i+1] = float32(grid.Spacing[i])
	}
	return hdr
}

func writeFrame(img *nifti.Nifti1Image, grid models.Grid, t int, src []float64) {
	for z := 0; z < grid.Dims[2]; z++ {
		for y := 0; y < grid.Dims[1]; y++ {
			for x := 0; x < grid.Dims[0]; x++ {
				img.SetAt(uint32(x), uint32(y), uint32(z), uint32(t), float32(src[grid.Index(x, y, z)]))
			}
		}
	}
}

// ResampleToSpacing resamples a volume onto a new isotropic-or-not voxel
// spacing with trilinear interpolation. The physical extent is preserved;
// the dimensions follow from the spacing ratio.
func ResampleToSpacing(vol *models.Volume, spacing [3]float64) *models.Volume {
	var dims [3]int
	for i := 0; i < 3; i++ {
		n := int(math.Round(float64(vol.Grid.Dims[i]) * vol.Grid.Spacing[i] / spacing[i]))
		if n < 1 {
			n = 1
		}
		dims[i] = n
	}
	grid := models.Grid{Dims: dims, Spacing: spacing}
	hdr := vol.Header
	for i := 0; i < 3; i++ {
		hdr.Dim[i+1] = int16(dims[i])
		hdr.Pixdim[i+1] = float32(spacing[i])
	}

	out := &models.Volume{Grid: grid, Header: hdr, Data: make([]float64, grid.NumVoxels())}
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				sx := float64(x) * spacing[0] / vol.Grid.Spacing[0]
				sy := float64(y) * spacing[1] / vol.Grid.Spacing[1]
				sz := float64(z) * spacing[2] / vol.Grid.Spacing[2]
				out.Data[grid.Index(x, y, z)] = trilinear(vol, sx, sy, sz)
			}
		}
	}
	return out
}

func trilinear(vol *models.Volume, x, y, z float64) float64 {
	x0, y0, z0 := int(x), int(y), int(z)
	fx, fy, fz := x-float64(x0), y-float64(y0), z-float64(z0)

	sample := func(xi, yi, zi int) float64 {
		if xi >= vol.Grid.Dims[0] {
			xi = vol.Grid.Dims[0] - 1
		}
		if yi >= vol.Grid.Dims[1] {
			yi = vol.Grid.Dims[1] - 1
		}
		if zi >= vol.Grid.Dims[2] {
			zi = vol.Grid.Dims[2] - 1
		}
		return vol.Data[vol.Grid.Index(xi, yi, zi)]
	}

	var acc float64
	for dz := 0; dz < 2; dz++ {
		wz := 1 - fz
		if dz == 1 {
			wz = fz
		}
		for dy := 0; dy < 2; dy++ {
			wy := 1 - fy
			if dy == 1 {
				wy = fy
			}
			for dx := 0; dx < 2; dx++ {
				wx := 1 - fx
				if dx == 1 {
					wx = fx
				}
				acc += wx * wy * wz * sample(x0+dx, y0+dy, z0+dz)
			}
		}
	}
	return acc
}
