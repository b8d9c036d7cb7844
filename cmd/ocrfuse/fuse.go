package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/joseph-ayodele/ocr-fusion/internal/common"
	"github.com/joseph-ayodele/ocr-fusion/internal/fusion"
	"github.com/joseph-ayodele/ocr-fusion/internal/ingest"
	"github.com/joseph-ayodele/ocr-fusion/internal/server"
)

func newFuseCmd(a *app) *cobra.Command {
	var (
		page      string
		anchor    string
		mode      string
		reference string
		remote    string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "fuse [KEY=FILE ...]",
		Short: "Fuse candidate text files into one transcription",
		Example: `  ocrfuse fuse paddle=page01.paddle.txt tess_psm03=page01.tess.psm03.txt --anchor paddle
  ocrfuse fuse --page scans/page01.jpg --mode best --reference scans/page01.curator.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cands, err := loadFuseCandidates(page, args)
			if err != nil {
				return err
			}
			req := server.FuseRequest{Candidates: cands, AnchorKey: anchor, Mode: mode}
			if reference != "" {
				text, ok, err := ingest.ReadTextIfExists(reference)
				if err != nil {
					return err
				}
				if !ok {
					return common.ConfigError("reference file %q does not exist", reference)
				}
				req.Reference = text
			}

			var res server.FuseResponse
			if remote != "" {
				conn, err := grpc.NewClient(remote, grpc.WithTransportCredentials(insecure.NewCredentials()))
				if err != nil {
					return err
				}
				defer conn.Close()
				res, err = server.NewClient(conn).Fuse(cmd.Context(), req)
				if err != nil {
					return err
				}
			} else {
				res, err = server.NewFusionService(a.fuser(), a.logger).Run(cmd.Context(), req)
				if err != nil {
					return err
				}
			}

			if asJSON {
				return printResult(cmd.OutOrStdout(), map[string]any{
					"text":                res.Text,
					"selected_candidates": res.SelectedCandidates,
					"mode":                res.Mode,
					"cer":                 res.CER,
					"wer":                 res.WER,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&page, "page", "", "page image whose candidate files are fused")
	f.StringVar(&anchor, "anchor", "", "candidate key used as the alignment anchor")
	f.StringVar(&mode, "mode", "fuse", "concat, best or fuse")
	f.StringVar(&reference, "reference", "", "reference text file (required by best, adds cer/wer)")
	f.StringVar(&remote, "remote", "", "address of an ocrfused server to fuse on")
	f.BoolVar(&asJSON, "json", false, "print a JSON object instead of the text")
	return cmd
}

// loadFuseCandidates reads the candidates of page and every KEY=FILE argument.
// A key given twice, by the page or by the arguments, is rejected.
func loadFuseCandidates(page string, args []string) (map[string]string, error) {
	var cands []fusion.Candidate
	if page != "" {
		loaded, err := ingest.LoadCandidates(ingest.BaseForImage(page))
		if err != nil {
			return nil, err
		}
		for k, v := range loaded {
			cands = append(cands, fusion.Candidate{Key: fusion.CandidateKey(k), Text: v})
		}
	}
	for _, arg := range args {
		key, path, ok := strings.Cut(arg, "=")
		if !ok || key == "" || path == "" {
			return nil, common.ConfigError("candidate %q must be KEY=FILE", arg)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		cands = append(cands, fusion.Candidate{Key: fusion.CandidateKey(key), Text: string(data)})
	}
	if len(cands) == 0 {
		return nil, common.ConfigError("no candidates: pass --page or KEY=FILE arguments")
	}
	set, err := fusion.NewCandidateSet(cands...)
	if err != nil {
		return nil, common.NewAppError(common.CodeConfig, "fuse arguments", errors.Join(common.ErrConfig, err))
	}
	out := make(map[string]string, len(set))
	for k, v := range set {
		out[string(k)] = v
	}
	return out, nil
}
