// Package transform applies a per-frame chain of spatial transforms to a
// 4D series by treating it as independent 3D frames: split, resample each
// frame through an external executable, and remerge in original order.
package transform

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"rodentprep/internal/models"
	"rodentprep/pkg/imageio"
	"rodentprep/pkg/volume"
)

// Resampler maps one moving volume file onto a reference grid through an
// ordered transform chain. Satisfied by ants.ApplyTransforms.
type Resampler interface {
	Resample(ctx context.Context, moving, reference, output string, transforms []string) error
}

// Engine resamples every frame of a series through its own transform
// chain. Frames are independent, so the per-frame calls run on a bounded
// worker pool; outputs are re-assembled in original frame order. One
// failed frame aborts the whole series: a partially warped series is
// never a valid output.
type Engine struct {
	Resampler Resampler

	// Workers bounds the concurrent resampler invocations; zero means
	// one per CPU
	Workers int
}

// Apply warps the series with the per-frame transforms in xforms (one
// frame unit per series frame, rank 4 or 5) and, when useFieldwarp is
// set, a shared distortion-correction field appended after the motion
// transform. scratchDir holds the materialized frames the external
// executable needs.
func (e *Engine) Apply(ctx context.Context, series, xforms *models.TimeSeries, fieldwarp string, useFieldwarp bool, scratchDir string) (*models.TimeSeries, error) {
	frames, err := volume.Split(series)
	if err != nil {
		return nil, err
	}
	xformUnits, err := volume.Split(xforms)
	if err != nil {
		return nil, err
	}
	if len(xformUnits) != len(frames) {
		return nil, &volume.CountMismatchError{Want: len(frames), Got: len(xformUnits)}
	}

	framePaths, xformPaths, outPaths, err := e.materialize(frames, xformUnits, scratchDir)
	if err != nil {
		return nil, err
	}

	// The first frame's grid is the reference grid for every frame.
	if err := e.resampleAll(ctx, framePaths, xformPaths, outPaths, framePaths[0], fieldwarp, useFieldwarp); err != nil {
		return nil, err
	}

	warped := make([]*models.Volume, len(frames))
	for t, path := range outPaths {
		vol, err := imageio.LoadVolume(path)
		if err != nil {
			return nil, fmt.Errorf("collecting warped frame %d: %w", t, err)
		}
		warped[t] = vol
	}
	return volume.Merge(warped, series)
}

// materialize writes each frame and its transform stack as separate
// files, the layout the external resampler requires.
func (e *Engine) materialize(frames, xformUnits []volume.FrameUnit, scratchDir string) (framePaths, xformPaths, outPaths []string, err error) {
	for _, sub := range []string{"frames", "xforms", "warped"} {
		if err := os.MkdirAll(filepath.Join(scratchDir, sub), 0755); err != nil {
			return nil, nil, nil, fmt.Errorf("transform scratch: %w", err)
		}
	}

	framePaths = make([]string, len(frames))
	xformPaths = make([]string, len(frames))
	outPaths = make([]string, len(frames))
	for t := range frames {
		framePaths[t] = filepath.Join(scratchDir, "frames", fmt.Sprintf("bold_vol%04d.nii.gz", t))
		xformPaths[t] = filepath.Join(scratchDir, "xforms", fmt.Sprintf("xform_vol%04d.nii.gz", t))
		outPaths[t] = filepath.Join(scratchDir, "warped", fmt.Sprintf("deformed_vol%04d.nii.gz", t))

		if err := imageio.SaveStack(frames[t].Volumes, framePaths[t]); err != nil {
			return nil, nil, nil, fmt.Errorf("writing frame %d: %w", t, err)
		}
		if err := imageio.SaveStack(xformUnits[t].Volumes, xformPaths[t]); err != nil {
			return nil, nil, nil, fmt.Errorf("writing transform %d: %w", t, err)
		}
	}
	return framePaths, xformPaths, outPaths, nil
}

func (e *Engine) resampleAll(ctx context.Context, framePaths, xformPaths, outPaths []string, reference, fieldwarp string, useFieldwarp bool) error {
	workers := e.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(framePaths) {
		workers = len(framePaths)
	}

	type frameResult struct {
		idx int
		err error
	}
	jobs := make(chan int)
	results := make(chan frameResult)

	for w := 0; w < workers; w++ {
		go func() {
			for t := range jobs {
				// Motion transform first, distortion field appended
				// only when it applies.
				chain := []string{xformPaths[t]}
				if useFieldwarp {
					chain = append(chain, fieldwarp)
				}
				err := e.Resampler.Resample(ctx, framePaths[t], reference, outPaths[t], chain)
				results <- frameResult{idx: t, err: err}
			}
		}()
	}

	go func() {
		for t := range framePaths {
			jobs <- t
		}
		close(jobs)
	}()

	var firstErr error
	firstFrame := -1
	for range framePaths {
		res := <-results
		if res.err != nil && (firstFrame < 0 || res.idx < firstFrame) {
			firstErr = res.err
			firstFrame = res.idx
		}
	}
	if firstErr != nil {
		return fmt.Errorf("resampling frame %d: %w", firstFrame, firstErr)
	}
	return nil
}
