package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ocr-fusion/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		out              string
		glob             string
		mode             string
		goldSuffix       string
		allowNoGold      bool
		writeHypothesis  bool
		hypothesisSuffix string
		xlsx             bool
		concurrency      int
	)
	cmd := &cobra.Command{
		Use:   "export INPUT_DIR",
		Short: "Export curated pages as a JSONL dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := &a.cfg.Export
			f := cmd.Flags()
			if f.Changed("glob") {
				e.Glob = glob
			}
			if f.Changed("multi-hyp") {
				e.MultiHyp = mode
			}
			if f.Changed("gold-suffix") {
				e.GoldSuffix = goldSuffix
			}
			if f.Changed("allow-no-gold") {
				e.FailIfNoGold = !allowNoGold
			}
			if f.Changed("write-hypothesis") {
				e.WriteHypothesis = writeHypothesis
			}
			if f.Changed("hypothesis-suffix") {
				e.HypothesisSuffix = hypothesisSuffix
			}
			if f.Changed("xlsx") {
				e.XLSX = xlsx
			}
			if f.Changed("concurrency") {
				e.Concurrency = concurrency
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			ctx, _ := a.runContext(cmd.Context())
			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			opts := []export.Option{export.WithLogger(a.logger), export.WithFuser(a.fuser())}
			if store != nil {
				opts = append(opts, export.WithRecorder(store))
			}
			exp, err := export.New(export.FromConfig(a.cfg, args[0], out), opts...)
			if err != nil {
				return err
			}
			res, err := exp.Run(ctx)
			if err != nil {
				return err
			}
			summary("export complete", "items", res.Items, "out", res.Out)
			return printResult(cmd.OutOrStdout(), res)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "dataset.jsonl", "dataset JSONL path; manifests are written next to it")
	f.StringVar(&glob, "glob", "**/*.jpg", "image glob relative to INPUT_DIR")
	f.StringVar(&mode, "multi-hyp", "concat", "how candidates become the model input: concat, best or fuse")
	f.StringVar(&goldSuffix, "gold-suffix", ".curator.txt", "suffix of curated text files")
	f.BoolVar(&allowNoGold, "allow-no-gold", false, "succeed even when no curated page exists")
	f.BoolVar(&writeHypothesis, "write-hypothesis", false, "write each page's input text next to it")
	f.StringVar(&hypothesisSuffix, "hypothesis-suffix", ".fuse.txt", "suffix of hypothesis files")
	f.BoolVar(&xlsx, "xlsx", false, "also write an XLSX report")
	f.IntVar(&concurrency, "concurrency", 4, "pages processed concurrently")
	return cmd
}
