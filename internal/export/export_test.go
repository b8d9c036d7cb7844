package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/ocr-fusion/internal/common"
	"github.com/joseph-ayodele/ocr-fusion/internal/manifest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func preparePage(t *testing.T, dir, name string) {
	t.Helper()
	writeFile(t, filepath.Join(dir, name+".jpg"), "fake-image")
	writeFile(t, filepath.Join(dir, name+".curator.txt"), "Texto correto")
	writeFile(t, filepath.Join(dir, name+".paddle.txt"), "Texto correto")
	writeFile(t, filepath.Join(dir, name+".tess.psm03.txt"), "Texte errado")
}

func exportConfig(dir, out, mode string) Config {
	return Config{
		InputDir:         dir,
		Glob:             "*.jpg",
		Out:              filepath.Join(dir, out),
		GoldSuffix:       ".curator.txt",
		MultiHyp:         mode,
		FailIfNoGold:     true,
		HypothesisSuffix: ".fuse.txt",
		Concurrency:      2,
	}
}

func runExport(t *testing.T, cfg Config) ([]DatasetRow, []map[string]any) {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rows, err := manifest.ReadJSONL[DatasetRow](res.Out)
	if err != nil {
		t.Fatalf("read dataset: %v", err)
	}
	records, err := manifest.ReadJSONL[map[string]any](res.ManifestJSONL)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if len(rows) != res.Items || len(records) != res.Items {
		t.Fatalf("items = %d, dataset rows = %d, manifest rows = %d", res.Items, len(rows), len(records))
	}
	return rows, records
}

func TestExportModes(t *testing.T) {
	tests := []struct {
		name         string
		mode         string
		wantInput    func(t *testing.T, input string)
		wantSelected []string
	}{
		{
			name: "concat includes all candidates",
			mode: "concat",
			wantInput: func(t *testing.T, input string) {
				for _, tag := range []string{"<paddle>", "<tess psm=03>"} {
					if !strings.Contains(input, tag) {
						t.Errorf("input %q lacks %s", input, tag)
					}
				}
			},
			wantSelected: []string{"paddle", "tess_psm03"},
		},
		{
			name: "best uses lowest cer candidate",
			mode: "best",
			wantInput: func(t *testing.T, input string) {
				if input != "Texto correto" {
					t.Errorf("input = %q", input)
				}
			},
			wantSelected: []string{"paddle"},
		},
		{
			name: "fuse merges candidates",
			mode: "FUSE",
			wantInput: func(t *testing.T, input string) {
				if input != "Texto correto" {
					t.Errorf("input = %q", input)
				}
			},
			wantSelected: []string{"paddle", "tess_psm03"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			preparePage(t, dir, "page01")

			rows, records := runExport(t, exportConfig(dir, "dataset.jsonl", tt.mode))
			if len(rows) != 1 {
				t.Fatalf("rows = %d, want 1", len(rows))
			}
			row := rows[0]
			tt.wantInput(t, row.InputText)

			mode := strings.ToLower(tt.mode)
			if row.Meta.MultiHypMode != mode {
				t.Errorf("meta mode = %q", row.Meta.MultiHypMode)
			}
			if diff := cmp.Diff(tt.wantSelected, row.Meta.SelectedCandidates); diff != "" {
				t.Errorf("selected mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"paddle", "tess_psm03"}, row.Meta.CandidatesKeys); diff != "" {
				t.Errorf("candidate keys mismatch (-want +got):\n%s", diff)
			}
			if row.TargetText != "Texto correto" || row.DocID != "page01" {
				t.Errorf("row = %+v", row)
			}

			rec := records[0]
			if rec["multi_hyp_mode"] != mode {
				t.Errorf("manifest mode = %v", rec["multi_hyp_mode"])
			}
			if rec["selected_candidates"] != strings.Join(tt.wantSelected, ";") {
				t.Errorf("manifest selected = %v", rec["selected_candidates"])
			}
			if rec["input_len"] != float64(utf8.RuneCountInString(row.InputText)) {
				t.Errorf("manifest input_len = %v", rec["input_len"])
			}
		})
	}
}

func TestExportBestScoresPerfectCandidate(t *testing.T) {
	dir := t.TempDir()
	preparePage(t, dir, "page01")
	_, records := runExport(t, exportConfig(dir, "out/dataset.jsonl", "best"))
	if records[0]["cer"] != 0.0 || records[0]["wer"] != 0.0 {
		t.Errorf("cer/wer = %v/%v, want 0/0", records[0]["cer"], records[0]["wer"])
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "export_manifest.csv")); err != nil {
		t.Errorf("manifest csv not next to dataset: %v", err)
	}
}

func TestExportUnknownModeWritesNothing(t *testing.T) {
	dir := t.TempDir()
	preparePage(t, dir, "page01")
	cfg := exportConfig(dir, "dataset.jsonl", "vote")

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = e.Run(context.Background())
	if !common.IsConfigError(err) {
		t.Fatalf("err = %v, want config error", err)
	}
	for _, name := range []string{"dataset.jsonl", "export_manifest.csv", "export_manifest.jsonl"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s exists after rejected mode", name)
		}
	}
}

func TestExportNoGold(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "page01.jpg"), "fake-image")
	writeFile(t, filepath.Join(dir, "page01.paddle.txt"), "texto")

	e, err := New(exportConfig(dir, "dataset.jsonl", "concat"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Run(context.Background()); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	cfg := exportConfig(dir, "dataset.jsonl", "concat")
	cfg.FailIfNoGold = false
	rows, _ := runExport(t, cfg)
	if len(rows) != 0 {
		t.Errorf("rows = %d, want 0", len(rows))
	}
}

func TestExportPreservesPageOrder(t *testing.T) {
	dir := t.TempDir()
	names := []string{"p01", "p02", "p03", "p04", "p05"}
	for _, n := range names {
		preparePage(t, dir, n)
	}
	cfg := exportConfig(dir, "dataset.jsonl", "fuse")
	cfg.Concurrency = 3
	rows, _ := runExport(t, cfg)

	var got []string
	for _, r := range rows {
		got = append(got, r.DocID)
	}
	if diff := cmp.Diff(names, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestExportHypothesisAndReport(t *testing.T) {
	dir := t.TempDir()
	preparePage(t, dir, "page01")
	cfg := exportConfig(dir, "dataset.jsonl", "fuse")
	cfg.WriteHypothesis = true
	cfg.XLSX = true

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	hyp, err := os.ReadFile(filepath.Join(dir, "page01.fuse.txt"))
	if err != nil {
		t.Fatalf("read hypothesis: %v", err)
	}
	if string(hyp) != "Texto correto" {
		t.Errorf("hypothesis = %q", hyp)
	}
	if _, err := os.Stat(res.XLSX); err != nil {
		t.Errorf("xlsx report missing: %v", err)
	}
}

func TestRowValidatorRejectsEmptyDocID(t *testing.T) {
	v, err := newRowValidator()
	if err != nil {
		t.Fatalf("newRowValidator: %v", err)
	}
	row := DatasetRow{
		Candidates: map[string]string{},
		Meta:       Meta{MultiHypMode: "concat", CandidatesKeys: []string{}, SelectedCandidates: []string{}},
	}
	if err := v.Validate(row); err == nil {
		t.Fatal("expected schema violation for empty doc_id")
	}
	row.DocID = "page01"
	if err := v.Validate(row); err != nil {
		t.Fatalf("valid row rejected: %v", err)
	}
}
