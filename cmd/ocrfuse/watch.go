package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ocr-fusion/internal/fusion"
	"github.com/joseph-ayodele/ocr-fusion/internal/ingest"
	"github.com/joseph-ayodele/ocr-fusion/internal/textdist"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		anchor      string
		initialScan bool
		debounce    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch DIR...",
		Short: "Re-fuse pages whenever their candidate files change",
		Long: "Watches the given directories recursively. Whenever a page's candidate or gold files\n" +
			"change, its candidates are fused again and written to <page><hypothesis_suffix>.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bases, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
				Roots:       args,
				GoldSuffix:  a.cfg.Export.GoldSuffix,
				InitialScan: initialScan,
				Debounce:    debounce,
				Logger:      a.logger,
			})
			if err != nil {
				return err
			}
			summary("watching", "dirs", args, "hypothesis_suffix", a.cfg.Export.HypothesisSuffix)

			fuser := a.fuser()
			for {
				select {
				case base, ok := <-bases:
					if !ok {
						return nil
					}
					if err := refusePage(ctx, a, fuser, base, fusion.CandidateKey(anchor)); err != nil {
						warnStyle.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", base, err)
					}
				case err, ok := <-errs:
					if !ok {
						return nil
					}
					warnStyle.Fprintf(cmd.ErrOrStderr(), "watch: %v\n", err)
				}
			}
		},
	}
	f := cmd.Flags()
	f.StringVar(&anchor, "anchor", "", "candidate key used as the alignment anchor")
	f.BoolVar(&initialScan, "initial-scan", true, "fuse the pages already present at startup")
	f.DurationVar(&debounce, "debounce", 500*time.Millisecond, "quiet period before a changed page is fused")
	return cmd
}

func refusePage(ctx context.Context, a *app, fuser *fusion.Fuser, base string, anchor fusion.CandidateKey) error {
	texts, err := ingest.LoadCandidates(base)
	if err != nil {
		return err
	}
	surviving := fusion.FromMap(texts).Surviving()
	if len(surviving) == 0 {
		return nil
	}
	fused := fuser.Fuse(surviving, anchor)
	out := base + a.cfg.Export.HypothesisSuffix
	if err := os.WriteFile(out, []byte(fused), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	attrs := []any{"page", base, "candidates", len(surviving), "out", out}
	if gold, ok, _ := ingest.ReadTextIfExists(base + a.cfg.Export.GoldSuffix); ok && gold != "" {
		cer, wer := textdist.Rates(gold, fused)
		attrs = append(attrs, "cer", cer, "wer", wer)
	}
	a.logger.InfoContext(ctx, "watch.page.fused", attrs...)
	return nil
}
