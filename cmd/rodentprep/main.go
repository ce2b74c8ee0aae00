package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"rodentprep/pkg/config"
	"rodentprep/pkg/pipeline"
)

func main() {
	// Parse command line arguments
	boldFile := flag.String("bold", "", "Raw 4D BOLD series (NIfTI)")
	wmMask := flag.String("wm-mask", "", "White-matter mask on the EPI grid")
	csfMask := flag.String("csf-mask", "", "CSF mask on the EPI grid")
	brainMask := flag.String("brain-mask", "", "Whole-brain mask on the EPI grid")
	fieldwarp := flag.String("fieldwarp", "", "Distortion-correction field (optional)")
	outputDir := flag.String("output", "rodentprep_out", "Output directory")
	scratchDir := flag.String("scratch", "", "Scratch directory (default: <output>/scratch)")
	configPath := flag.String("config", "rodentprep.yaml", "Configuration file")
	numCores := flag.Int("cores", runtime.NumCPU(), "Number of CPU cores for per-frame resampling")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration file and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Wrote default configuration to %s\n", *configPath)
		return
	}

	if *boldFile == "" || *wmMask == "" || *csfMask == "" || *brainMask == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Processing.NumCores = *numCores
	if *fieldwarp != "" {
		cfg.Processing.UseFieldwarp = true
	}

	scratch := *scratchDir
	if scratch == "" {
		scratch = *outputDir + "/scratch"
	}

	params := &pipeline.Params{
		BoldFile:   *boldFile,
		WMMask:     *wmMask,
		CSFMask:    *csfMask,
		BrainMask:  *brainMask,
		Fieldwarp:  *fieldwarp,
		OutputDir:  *outputDir,
		ScratchDir: scratch,
	}

	fmt.Println("Starting confound preprocessing...")
	startTime := time.Now()
	result, err := pipeline.NewPipeline(params, cfg).Process(context.Background())
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}

	fmt.Printf("\nRun completed in %.2f seconds\n", time.Since(startTime).Seconds())
	fmt.Printf("Non-steady-state volumes: %d\n", result.DummyCount)
	fmt.Printf("Reference image: %s\n", result.ReferencePath)
	fmt.Printf("Motion-corrected series: %s\n", result.CorrectedPath)
	fmt.Printf("Confound matrix (%d frames x %d regressors): %s\n",
		len(result.Confounds.Rows), len(result.Confounds.Columns), result.ConfoundsCSV)
}
