package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OCRFUSE_DB_URL", "OCRFUSE_GRPC_ADDR", "OCRFUSE_TESSERACT", "TESSDATA_PREFIX",
		"OCRFUSE_TESSERACT_LANG", "OCRFUSE_GPU", "OCRFUSE_ENGINES", "OCRFUSE_OCR_WORKERS",
		"OCRFUSE_MULTI_HYP", "OCRFUSE_GOLD_SUFFIX", "OCRFUSE_LOG_LEVEL", "OCRFUSE_LOG_FORMAT",
		"OCRFUSE_DB_DIAL_TIMEOUT",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadConfigLayersFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[ocr]
lang = "eng"
psm = [6]
engines = ["tesseract"]

[export]
multi_hyp = "fuse"

[fusion.weights]
tess = 1.5
`)
	t.Setenv("OCRFUSE_GOLD_SUFFIX", ".gold.txt")
	t.Setenv("OCRFUSE_DB_DIAL_TIMEOUT", "7s")
	t.Setenv("OCRFUSE_ENGINES", "tesseract, paddle")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.OCR.Lang != "eng" || cfg.OCR.OEM != 3 {
		t.Errorf("ocr lang/oem = %q/%d", cfg.OCR.Lang, cfg.OCR.OEM)
	}
	if diff := cmp.Diff([]int{6}, cfg.OCR.PSM); diff != "" {
		t.Errorf("psm (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"tesseract", "paddle"}, cfg.OCR.Engines); diff != "" {
		t.Errorf("engines (-want +got):\n%s", diff)
	}
	if cfg.Export.MultiHyp != "fuse" {
		t.Errorf("multi_hyp = %q", cfg.Export.MultiHyp)
	}
	if cfg.Export.GoldSuffix != ".gold.txt" || cfg.Eval.GoldSuffix != ".gold.txt" {
		t.Errorf("gold suffix = %q/%q", cfg.Export.GoldSuffix, cfg.Eval.GoldSuffix)
	}
	if cfg.Store.DialTimeout != 7*time.Second {
		t.Errorf("dial timeout = %v", cfg.Store.DialTimeout)
	}
	if cfg.Fusion.Weights["tess"] != 1.5 {
		t.Errorf("weights = %v", cfg.Fusion.Weights)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if !IsConfigError(err) {
		t.Errorf("missing explicit file: err = %v, want config error", err)
	}

	_, err = LoadConfig(writeConfig(t, "[ocr\nlang ="))
	if !IsConfigError(err) {
		t.Errorf("malformed file: err = %v, want config error", err)
	}
}

func TestValidateCollectsFieldErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OCR.Engines = []string{"tesseract", "abbyy"}
	cfg.OCR.PSM = []int{3, 14}
	cfg.Export.MultiHyp = "vote"
	cfg.Fusion.Weights = map[string]float64{"paddle": 0}

	err := cfg.Validate()
	if !IsConfigError(err) {
		t.Fatalf("err = %v, want config error", err)
	}
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != CodeConfig {
		t.Fatalf("err = %#v, want AppError with %s", err, CodeConfig)
	}
	for _, field := range []string{"ocr.engines", "ocr.psm", "export.multi_hyp", "fusion.weights.paddle"} {
		if !strings.Contains(appErr.Message, field) {
			t.Errorf("message %q does not mention %s", appErr.Message, field)
		}
	}
}

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"config", ConfigError("unknown mode %q", "vote"), codes.InvalidArgument},
		{"invalid input", fmt.Errorf("decode: %w", ErrInvalidInput), codes.InvalidArgument},
		{"not found", NewAppError(CodeNotFound, "no gold", ErrNotFound), codes.NotFound},
		{"other", errors.New("boom"), codes.Internal},
		{"status passthrough", status.Error(codes.Unavailable, "down"), codes.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := status.Code(StatusFromError(tt.err)); got != tt.want {
				t.Errorf("code = %v, want %v", got, tt.want)
			}
		})
	}
	if StatusFromError(nil) != nil {
		t.Error("nil error should map to nil")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "json", &buf)
	logger.Info("hidden")
	logger.Warn("shown", "page", "p1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "shown" || rec["page"] != "p1" {
		t.Errorf("record = %v", rec)
	}

	if lvl, ok := ParseLevel("DBG"); !ok || lvl != slog.LevelDebug {
		t.Errorf("ParseLevel(DBG) = %v, %v", lvl, ok)
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Error("ParseLevel(loud) should fail")
	}
}
