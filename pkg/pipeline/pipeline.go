// Package pipeline orchestrates one run of the preprocessing core:
// reference estimation, motion correction, per-frame transform
// application and confound matrix assembly. Different runs share no
// mutable state, so callers may process runs in parallel as long as each
// run gets its own scratch and output directories.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rodentprep/internal/models"
	"rodentprep/pkg/ants"
	"rodentprep/pkg/confound"
	"rodentprep/pkg/config"
	"rodentprep/pkg/imageio"
	"rodentprep/pkg/reference"
	"rodentprep/pkg/transform"
)

// Params holds the inputs and output locations of one run.
type Params struct {
	// BoldFile is the raw 4D EPI series
	BoldFile string

	// WMMask, CSFMask and BrainMask are binary masks on the EPI grid
	WMMask    string
	CSFMask   string
	BrainMask string

	// Fieldwarp is the shared susceptibility-distortion field, applied
	// per frame when the configuration enables it
	Fieldwarp string

	// OutputDir receives the run artifacts
	OutputDir string

	// ScratchDir is this run's private working directory
	ScratchDir string
}

// Result collects the artifacts of a completed run.
type Result struct {
	Reference  *models.Volume
	DummyCount int

	// ReferencePath and CorrectedPath are the persisted reference
	// volume and motion-corrected series
	ReferencePath string
	CorrectedPath string

	// Confounds is the assembled matrix, also persisted at ConfoundsCSV
	Confounds    *confound.Matrix
	ConfoundsCSV string
}

// Pipeline executes the preprocessing stages for a single run.
type Pipeline struct {
	params *Params
	cfg    *config.Config
}

// NewPipeline creates a pipeline for one run with the provided
// parameters and configuration.
func NewPipeline(params *Params, cfg *config.Config) *Pipeline {
	return &Pipeline{params: params, cfg: cfg}
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p.cfg.Output.Verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// base returns the run's file-name prefix, derived from the input series.
func (p *Pipeline) base() string {
	name := filepath.Base(p.params.BoldFile)
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".nii")
	return name
}

// Process runs the full per-run sequence. The stages form a strict
// dependency chain and execute sequentially; only the per-frame
// resampling inside step 3 is parallel.
func (p *Pipeline) Process(ctx context.Context) (*Result, error) {
	for _, dir := range []string{p.params.OutputDir, p.params.ScratchDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create run directory: %w", err)
		}
	}
	solver := ants.MotionCorr{Exec: p.cfg.Tools.MotionCorr}

	// Step 1: load the raw series
	p.logf("Step 1: Loading BOLD series %s...", p.params.BoldFile)
	series, err := imageio.LoadTimeSeries(p.params.BoldFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load series: %w", err)
	}

	// Step 2: estimate the reference volume and dummy count
	p.logf("Step 2: Estimating reference image...")
	estimator := &reference.Estimator{Corrector: &reference.ANTsCorrector{Solver: solver}}
	ref, err := estimator.Estimate(ctx, series, filepath.Join(p.params.ScratchDir, "reference"))
	if err != nil {
		return nil, fmt.Errorf("reference estimation failed: %w", err)
	}
	refPath := filepath.Join(p.params.OutputDir, p.base()+"_bold_ref.nii.gz")
	if err := imageio.SaveVolume(ref.Reference, refPath); err != nil {
		return nil, fmt.Errorf("failed to save reference: %w", err)
	}
	p.logf("Detected %d non-steady-state volumes", ref.DummyCount)

	// Step 3: realign the full series to the reference and apply the
	// per-frame transforms
	p.logf("Step 3: Motion correction and per-frame resampling...")
	mc, err := solver.Run(ctx, filepath.Join(p.params.ScratchDir, "motcorr"), p.params.BoldFile, refPath)
	if err != nil {
		return nil, fmt.Errorf("motion correction failed: %w", err)
	}
	warps, err := imageio.LoadTimeSeries(mc.WarpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load motion transforms: %w", err)
	}
	engine := &transform.Engine{
		Resampler: &ants.ApplyTransforms{
			Exec:          p.cfg.Tools.ApplyTransforms,
			Interpolation: p.cfg.Tools.Interpolation,
		},
		Workers: p.cfg.Processing.NumCores,
	}
	corrected, err := engine.Apply(ctx, series, warps, p.params.Fieldwarp,
		p.cfg.Processing.UseFieldwarp, filepath.Join(p.params.ScratchDir, "apply"))
	if err != nil {
		return nil, fmt.Errorf("transform application failed: %w", err)
	}
	correctedPath := filepath.Join(p.params.OutputDir, p.base()+"_motcorr_bold.nii.gz")
	if err := imageio.SaveTimeSeries(corrected, correctedPath); err != nil {
		return nil, fmt.Errorf("failed to save corrected series: %w", err)
	}

	// Step 4: extract confound sources from the corrected series
	p.logf("Step 4: Extracting confound signals...")
	sources, err := p.extractSources(corrected, mc.ParamsCSV)
	if err != nil {
		return nil, err
	}

	// Step 5: assemble and persist the confound matrix
	p.logf("Step 5: Assembling confound matrix...")
	matrix, err := confound.Build(*sources)
	if err != nil {
		return nil, fmt.Errorf("confound assembly failed: %w", err)
	}
	csvPath := filepath.Join(p.params.OutputDir, p.base()+"_confounds.csv")
	if err := matrix.WriteCSV(csvPath); err != nil {
		return nil, err
	}
	if p.cfg.Output.WriteNpy {
		if err := matrix.WriteNpy(filepath.Join(p.params.OutputDir, p.base()+"_confounds.npy")); err != nil {
			return nil, err
		}
	}

	return &Result{
		Reference:     ref.Reference,
		DummyCount:    ref.DummyCount,
		ReferencePath: refPath,
		CorrectedPath: correctedPath,
		Confounds:     matrix,
		ConfoundsCSV:  csvPath,
	}, nil
}

// extractSources computes the tissue traces, aCompCor components and
// motion regressors for the corrected series.
func (p *Pipeline) extractSources(corrected *models.TimeSeries, paramsCSV string) (*confound.Sources, error) {
	policy := p.cfg.CompCorPolicy()

	wmMask, err := imageio.LoadVolume(p.params.WMMask)
	if err != nil {
		return nil, fmt.Errorf("failed to load WM mask: %w", err)
	}
	csfMask, err := imageio.LoadVolume(p.params.CSFMask)
	if err != nil {
		return nil, fmt.Errorf("failed to load CSF mask: %w", err)
	}
	brainMask, err := imageio.LoadVolume(p.params.BrainMask)
	if err != nil {
		return nil, fmt.Errorf("failed to load brain mask: %w", err)
	}

	wmSignal, err := confound.MaskTrace(corrected, wmMask)
	if err != nil {
		return nil, fmt.Errorf("WM trace failed: %w", err)
	}
	wmComp, err := confound.CompCor(corrected, wmMask, policy)
	if err != nil {
		return nil, fmt.Errorf("WM aCompCor failed: %w", err)
	}
	csfSignal, err := confound.MaskTrace(corrected, csfMask)
	if err != nil {
		return nil, fmt.Errorf("CSF trace failed: %w", err)
	}
	csfComp, err := confound.CompCor(corrected, csfMask, policy)
	if err != nil {
		return nil, fmt.Errorf("CSF aCompCor failed: %w", err)
	}
	globalSignal, err := confound.MaskTrace(corrected, brainMask)
	if err != nil {
		return nil, fmt.Errorf("global trace failed: %w", err)
	}

	movpar, err := confound.ParseMotionParams(paramsCSV)
	if err != nil {
		return nil, err
	}
	motion24, err := confound.ExpandMotion24(movpar)
	if err != nil {
		return nil, err
	}

	return &confound.Sources{
		WMSignal:      wmSignal,
		WMComponents:  wmComp.Components,
		CSFSignal:     csfSignal,
		CSFComponents: csfComp.Components,
		GlobalSignal:  globalSignal,
		Motion24:      motion24,
	}, nil
}
