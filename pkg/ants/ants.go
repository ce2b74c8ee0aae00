// Package ants invokes the ANTs executables the pipeline depends on:
// antsMotionCorr for rigid realignment and antsApplyTransforms for
// per-frame resampling. Both are blocking calls with all-or-nothing
// results; a nonzero exit surfaces as an ExternalToolError.
package ants

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExternalToolError reports a collaborator executable that exited with a
// nonzero status. Stderr is kept to make the failure reproducible.
type ExternalToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ExternalToolError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\n" + s
	}
	return msg
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

func run(ctx context.Context, dir, tool string, args []string) error {
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &ExternalToolError{Tool: tool, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// MotionCorrResult names the artifacts antsMotionCorr leaves in its
// scratch directory.
type MotionCorrResult struct {
	// CorrectedPath is the motion-corrected 4D series
	CorrectedPath string

	// AveragePath is the average image of the corrected series
	AveragePath string

	// ParamsCSV is the per-frame rigid-parameter table (MOCO layout)
	ParamsCSV string

	// WarpPath is the per-frame transform series (5D)
	WarpPath string
}

// MotionCorr wraps the antsMotionCorr solver. The registration settings
// are the rigid MI schedule used for rodent EPI.
type MotionCorr struct {
	// Exec overrides the executable name, default "antsMotionCorr"
	Exec string
}

// Run realigns the series at seriesPath to the reference at refPath,
// writing every artifact under scratchDir. The caller owns scratchDir
// and must hand each invocation its own directory: the solver's output
// names are fixed, so two invocations sharing a directory corrupt each
// other.
func (m *MotionCorr) Run(ctx context.Context, scratchDir, seriesPath, refPath string) (*MotionCorrResult, error) {
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("motion correction scratch: %w", err)
	}
	tool := m.Exec
	if tool == "" {
		tool = "antsMotionCorr"
	}

	prefix := filepath.Join(scratchDir, "motcorr")
	res := &MotionCorrResult{
		CorrectedPath: prefix + ".nii.gz",
		AveragePath:   prefix + "_avg.nii.gz",
		ParamsCSV:     prefix + "MOCOparams.csv",
		WarpPath:      prefix + "Warp.nii.gz",
	}

	args := []string{
		"-d", "3",
		"-o", fmt.Sprintf("[%s,%s,%s]", prefix, res.CorrectedPath, res.AveragePath),
		"-m", fmt.Sprintf("MI[%s,%s,1,20,Regular,0.2]", refPath, seriesPath),
		"-t", "Rigid[0.25]",
		"-i", "50x20",
		"-u", "1",
		"-e", "1",
		"-s", "1x0",
		"-f", "2x1",
		"-n", "10",
		"-l", "1",
		"-w", "1",
	}
	if err := run(ctx, scratchDir, tool, args); err != nil {
		return nil, err
	}
	return res, nil
}

// ApplyTransforms wraps antsApplyTransforms for one moving volume.
type ApplyTransforms struct {
	// Exec overrides the executable name, default "antsApplyTransforms"
	Exec string

	// Interpolation defaults to LanczosWindowedSinc; the high-order
	// kernel keeps repeated resampling from smoothing the series
	Interpolation string
}

// Resample maps the moving volume onto the reference grid through the
// ordered transform chain and writes the result to output.
func (a *ApplyTransforms) Resample(ctx context.Context, moving, reference, output string, transforms []string) error {
	tool := a.Exec
	if tool == "" {
		tool = "antsApplyTransforms"
	}
	interp := a.Interpolation
	if interp == "" {
		interp = "LanczosWindowedSinc"
	}

	args := []string{
		"-d", "3",
		"--float",
		"-i", moving,
		"-r", reference,
		"-o", output,
		"-n", interp,
	}
	for _, t := range transforms {
		args = append(args, "-t", t)
	}
	return run(ctx, filepath.Dir(output), tool, args)
}
