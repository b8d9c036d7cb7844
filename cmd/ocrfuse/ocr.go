package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ocr-fusion/internal/batch"
)

func newOCRCmd(a *app) *cobra.Command {
	ocrCmd := &cobra.Command{
		Use:   "ocr",
		Short: "Run OCR engines over a collection",
	}

	var (
		glob       string
		engines    []string
		lang       string
		oem        int
		psm        []int
		outputs    []string
		dryRun     bool
		gpu        bool
		noManifest bool
		inProcess  bool
		workers    int
	)
	runCmd := &cobra.Command{
		Use:   "run INPUT_DIR",
		Short: "Run the enabled engines on every page image and write the OCR manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := &a.cfg.OCR
			f := cmd.Flags()
			if f.Changed("glob") {
				o.Glob = glob
			}
			if f.Changed("engines") {
				o.Engines = engines
			}
			if f.Changed("lang") {
				o.Lang = lang
			}
			if f.Changed("oem") {
				o.OEM = oem
			}
			if f.Changed("psm") {
				o.PSM = psm
			}
			if f.Changed("outputs") {
				o.Outputs = outputs
			}
			if f.Changed("dry-run") {
				o.DryRun = dryRun
			}
			if f.Changed("gpu") {
				o.GPU = gpu
			}
			if f.Changed("no-manifest") {
				o.WriteManifest = !noManifest
			}
			if f.Changed("in-process") {
				o.InProcess = inProcess
			}
			if f.Changed("workers") {
				o.Workers = workers
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			ctx, runID := a.runContext(cmd.Context())
			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			opts := []batch.Option{batch.WithLogger(a.logger)}
			if store != nil {
				opts = append(opts, batch.WithRecorder(store))
			}
			runner, err := batch.New(batch.FromConfig(a.cfg, args[0]), opts...)
			if err != nil {
				return err
			}
			res, err := runner.Run(ctx)
			if err != nil {
				return err
			}

			summary("ocr run complete",
				"run_id", runID,
				"images", res.Stats.Images,
				"rows", res.Stats.Rows,
				"manifest", res.ManifestCSV,
			)
			return printResult(cmd.OutOrStdout(), map[string]any{
				"run_id":         runID.String(),
				"stats":          res.Stats,
				"manifest_csv":   res.ManifestCSV,
				"manifest_jsonl": res.ManifestJSONL,
			})
		},
	}

	f := runCmd.Flags()
	f.StringVar(&glob, "glob", "**/*.jpg", "image glob relative to INPUT_DIR")
	f.StringSliceVar(&engines, "engines", nil, "engines to run (tesseract, paddle, easyocr)")
	f.StringVar(&lang, "lang", "por", "tesseract language")
	f.IntVar(&oem, "oem", 3, "tesseract OCR engine mode")
	f.IntSliceVar(&psm, "psm", nil, "tesseract page segmentation modes")
	f.StringSliceVar(&outputs, "outputs", nil, "tesseract output formats (txt, tsv, hocr)")
	f.BoolVar(&dryRun, "dry-run", false, "record invocations without running tesseract")
	f.BoolVar(&gpu, "gpu", false, "run paddle and easyocr on the GPU")
	f.BoolVar(&noManifest, "no-manifest", false, "do not write the OCR manifest")
	f.BoolVar(&inProcess, "in-process", false, "run tesseract in-process (binary built with -tags gosseract)")
	f.IntVar(&workers, "workers", 2, "pages processed concurrently")

	ocrCmd.AddCommand(runCmd)
	return ocrCmd
}
