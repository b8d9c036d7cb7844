package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/ocr-fusion/internal/common"
	"github.com/joseph-ayodele/ocr-fusion/internal/entity"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{DSN: filepath.Join(t.TempDir(), "runs.db")}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func intPtrOf(v int) *int { return &v }

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), Config{}, nil); !common.IsConfigError(err) {
		t.Fatalf("err = %v, want config error", err)
	}
}

func TestIsPostgres(t *testing.T) {
	for dsn, want := range map[string]bool{
		"postgres://u:p@localhost/db":   true,
		"postgresql://localhost/db":     true,
		"/var/lib/ocrfuse/runs.db":      false,
		"sqlite://runs.db":              false,
	} {
		if got := IsPostgres(dsn); got != want {
			t.Errorf("IsPostgres(%q) = %v, want %v", dsn, got, want)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	s := openTestStore(t)
	if err := s.HealthCheck(context.Background(), time.Second); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if s.Dialect() != "sqlite3" {
		t.Errorf("dialect = %q", s.Dialect())
	}
}

func TestReopenKeepsTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	for i := 0; i < 2; i++ {
		s, err := Open(context.Background(), Config{DSN: path}, nil)
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		s.Close()
	}
}

func TestEngineRunsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := uuid.New()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	runs := []entity.EngineRun{
		{
			ID: uuid.New(), RunID: runID, Timestamp: ts,
			SourcePath: "/c/p1.jpg", SourceSHA256: "abc", Engine: "tesseract", EngineVersion: "tesseract 5.3.0",
			Device: "cpu", Lang: "por", OEM: intPtrOf(3), PSM: intPtrOf(6), Format: "txt",
			Available: true, DurationSec: 1.25, OutPath: "/c/p1.tess.psm06.txt",
		},
		{
			ID: uuid.New(), RunID: runID, Timestamp: ts,
			SourcePath: "/c/p1.jpg", SourceSHA256: "abc", Engine: "paddle", Device: "cpu", Lang: "pt",
			Format: "txt", ExitCode: 1, Stderr: "paddle not installed", Notes: "backend missing",
		},
	}
	if err := s.RecordEngineRuns(ctx, runs); err != nil {
		t.Fatalf("RecordEngineRuns: %v", err)
	}
	if err := s.RecordEngineRuns(ctx, []entity.EngineRun{{RunID: uuid.New(), Timestamp: ts, SourcePath: "/other.jpg", Engine: "easyocr"}}); err != nil {
		t.Fatalf("RecordEngineRuns other run: %v", err)
	}

	got, err := s.ListEngineRuns(ctx, runID)
	if err != nil {
		t.Fatalf("ListEngineRuns: %v", err)
	}
	want := []entity.EngineRun{runs[1], runs[0]}
	// Error is not persisted
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(entity.EngineRun{}, "Error")); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestExportItemsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	runID := uuid.New()

	items := []entity.ExportItem{
		{
			RunID: runID, DocID: "page02", SourceImage: "/c/page02.jpg", NumCandidates: 2, HasCurator: true,
			CER: 0.1, WER: 0.5, CuratorLen: 13, InputLen: 12,
			CandidatesPresent: []string{"paddle", "tess_psm03"}, MultiHypMode: "fuse",
			SelectedCandidates: []string{"paddle", "tess_psm03"},
		},
		{
			RunID: runID, DocID: "page01", SourceImage: "/c/page01.jpg", HasCurator: true,
			CER: 1, WER: 1, CuratorLen: 5, CandidatesPresent: []string{}, MultiHypMode: "best",
			SelectedCandidates: []string{},
		},
	}
	if err := s.RecordExportItems(ctx, items); err != nil {
		t.Fatalf("RecordExportItems: %v", err)
	}

	got, err := s.ListExportItems(ctx, runID)
	if err != nil {
		t.Fatalf("ListExportItems: %v", err)
	}
	if diff := cmp.Diff([]entity.ExportItem{items[1], items[0]}, got); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}

	// the (run_id, doc_id) key rejects duplicates and rolls the batch back
	err = s.RecordExportItems(ctx, []entity.ExportItem{items[0]})
	if !errors.Is(err, common.ErrDatabase) {
		t.Fatalf("duplicate insert err = %v, want ErrDatabase", err)
	}

	none, err := s.ListExportItems(ctx, uuid.New())
	if err != nil || len(none) != 0 {
		t.Errorf("unknown run = %v, %v", none, err)
	}
}
