// Package reference estimates a motion-stable 3D reference volume from a
// raw 4D series and detects leading non-steady-state (dummy) volumes.
package reference

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"rodentprep/internal/models"
	"rodentprep/pkg/ants"
	"rodentprep/pkg/imageio"
	"rodentprep/pkg/outlier"
	"rodentprep/pkg/volume"
)

const (
	// traceWindow bounds how many leading frames feed dummy detection
	// and the candidate series
	traceWindow = 50

	// windowStart/windowEnd bracket the representative frames used for
	// the initial target when the series is long enough
	windowStart = 20
	windowEnd   = 40
)

// Corrector is the external motion-correction solver seen at the level
// the estimator needs: candidate frames and a target in, the realigned
// series out. Each invocation gets its own scratch directory; sharing
// one between invocations corrupts the solver's fixed-name outputs.
type Corrector interface {
	Correct(ctx context.Context, scratchDir string, series *models.TimeSeries, target *models.Volume) (*models.TimeSeries, error)
}

// Result is the estimator's output: the reference volume and how many
// leading frames were identified as non-steady-state. DummyCount zero is
// a valid and common result.
type Result struct {
	Reference  *models.Volume
	DummyCount int
}

// Estimator derives a reference image for a series. When dummy frames
// are present their median already approximates a clean anatomical
// contrast and no solver run is needed; otherwise two solver passes let
// the reference converge toward the series' central tendency instead of
// the arbitrary initial target.
type Estimator struct {
	Corrector Corrector
}

// Estimate runs dummy detection and, if needed, the two-pass
// convergence. scratchDir must be unique to this run; each pass works in
// its own subdirectory underneath it.
func (e *Estimator) Estimate(ctx context.Context, series *models.TimeSeries, scratchDir string) (*Result, error) {
	trace := volume.MeanTrace(series, 0, traceWindow)
	dummies := outlier.LeadingCount(trace)

	if dummies > 0 {
		return &Result{
			Reference:  volume.MedianVolume(series, 0, dummies),
			DummyCount: dummies,
		}, nil
	}

	candidates, target := e.initialTarget(series)

	corrected, err := e.Corrector.Correct(ctx, filepath.Join(scratchDir, "pass1"), candidates, target)
	if err != nil {
		return nil, fmt.Errorf("reference pass 1: %w", err)
	}
	refined := volume.MedianVolume(corrected, 0, corrected.NumFrames())

	corrected, err = e.Corrector.Correct(ctx, filepath.Join(scratchDir, "pass2"), candidates, refined)
	if err != nil {
		return nil, fmt.Errorf("reference pass 2: %w", err)
	}

	return &Result{
		Reference:  volume.MedianVolume(corrected, 0, corrected.NumFrames()),
		DummyCount: 0,
	}, nil
}

// initialTarget picks the candidate frames and their median. Long series
// use the representative 20-frame window; short ones fall back to the
// whole series truncated to the trace window.
func (e *Estimator) initialTarget(series *models.TimeSeries) (*models.TimeSeries, *models.Volume) {
	if series.NumFrames() >= windowEnd {
		candidates := volume.Window(series, windowStart, windowEnd)
		return candidates, volume.MedianVolume(series, windowStart, windowEnd)
	}
	candidates := volume.Window(series, 0, traceWindow)
	return candidates, volume.MedianVolume(candidates, 0, candidates.NumFrames())
}

// ANTsCorrector adapts the antsMotionCorr executable to the Corrector
// interface by materializing the series and target as files and loading
// the corrected series back.
type ANTsCorrector struct {
	Solver ants.MotionCorr
}

func (c *ANTsCorrector) Correct(ctx context.Context, scratchDir string, series *models.TimeSeries, target *models.Volume) (*models.TimeSeries, error) {
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("solver scratch: %w", err)
	}
	seriesPath := filepath.Join(scratchDir, "candidates.nii.gz")
	targetPath := filepath.Join(scratchDir, "target.nii.gz")
	if err := imageio.SaveTimeSeries(series, seriesPath); err != nil {
		return nil, err
	}
	if err := imageio.SaveVolume(target, targetPath); err != nil {
		return nil, err
	}

	res, err := c.Solver.Run(ctx, scratchDir, seriesPath, targetPath)
	if err != nil {
		return nil, err
	}
	return imageio.LoadTimeSeries(res.CorrectedPath)
}
