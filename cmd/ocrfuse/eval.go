package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ocr-fusion/internal/eval"
)

func newEvalCmd(a *app) *cobra.Command {
	var (
		outDir     string
		glob       string
		goldSuffix string
		xlsx       bool
	)
	cmd := &cobra.Command{
		Use:   "eval INPUT_DIR",
		Short: "Score every candidate against the curated text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := &a.cfg.Eval
			f := cmd.Flags()
			if f.Changed("glob") {
				e.Glob = glob
			}
			if f.Changed("gold-suffix") {
				e.GoldSuffix = goldSuffix
			}
			if f.Changed("xlsx") {
				e.XLSX = xlsx
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			res, err := eval.Run(cmd.Context(), eval.FromConfig(a.cfg, args[0], outDir), a.logger)
			if err != nil {
				return err
			}
			summary("eval complete", "pages", res.PagesEval, "groups", res.Groups, "out_dir", res.OutDir)
			for _, g := range res.Summary {
				name := g.Engine
				if g.PSM != "" {
					name += " psm " + g.PSM
				}
				keyStyle.Fprintf(cmd.ErrOrStderr(), "  %-18s cer %.4f  wer %.4f  (n=%d)\n", name, g.CERMean, g.WERMean, g.Count)
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&outDir, "out-dir", "eval", "directory for the evaluation CSVs")
	f.StringVar(&glob, "glob", "**/*.jpg", "image glob relative to INPUT_DIR")
	f.StringVar(&goldSuffix, "gold-suffix", ".curator.txt", "suffix of curated text files")
	f.BoolVar(&xlsx, "xlsx", false, "also write an XLSX report")
	return cmd
}
