package report

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
)

func TestWorkbookRoundTrip(t *testing.T) {
	data, err := Workbook(
		Sheet{
			Name:    "Pages",
			Headers: []string{"doc_id", "cer"},
			Rows:    [][]any{{"a/page1", 0.25}, {"b/page2", 0.0}},
			Widths:  map[string]float64{"A": 40},
		},
		Sheet{Name: "Summary", Headers: []string{"engine"}, Rows: [][]any{{"tesseract"}}},
	)
	if err != nil {
		t.Fatalf("Workbook: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	if diff := cmp.Diff([]string{"Pages", "Summary"}, f.GetSheetList()); diff != "" {
		t.Errorf("sheets mismatch (-want +got):\n%s", diff)
	}
	rows, err := f.GetRows("Pages")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	want := [][]string{{"doc_id", "cer"}, {"a/page1", "0.25"}, {"b/page2", "0"}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestWorkbookRequiresSheets(t *testing.T) {
	if _, err := Workbook(); err == nil {
		t.Fatal("expected error for empty workbook")
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "eval.xlsx")
	if err := WriteFile(path, Sheet{Name: "Eval", Headers: []string{"x"}}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if got := f.GetSheetName(0); got != "Eval" {
		t.Errorf("first sheet = %q", got)
	}
}
