package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type call struct {
	Name string
	Args []string
}

// fakeRunner records calls and answers from a table keyed by the first argument.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []call
	stdout map[string]string
	stderr map[string]string
	errs   map[string]error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Name: name, Args: append([]string(nil), args...)})
	key := ""
	if len(args) > 0 {
		key = args[0]
	}
	return []byte(f.stdout[key]), []byte(f.stderr[key]), f.errs[key]
}

func (f *fakeRunner) count(arg0 string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c.Args) > 0 && c.Args[0] == arg0 {
			n++
		}
	}
	return n
}

func TestTesseractRunInvocations(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "page01.jpg")
	r := &fakeRunner{
		stdout: map[string]string{"--version": "tesseract 5.3.0\n leptonica-1.82.0\n"},
		errs:   map[string]error{},
	}
	tess := NewTesseract(TesseractConfig{Lang: "por", OEM: 3, PSM: []int{3, 11}, Formats: []string{"txt", "hocr"}}, nil, WithRunner(r))

	out, err := tess.Run(context.Background(), image)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Version != "tesseract 5.3.0" {
		t.Fatalf("Version = %q", out.Version)
	}
	if len(out.Invocations) != 4 {
		t.Fatalf("expected 4 invocations, got %d", len(out.Invocations))
	}

	base := filepath.Join(dir, "page01")
	wantFirst := call{Name: "tesseract", Args: []string{image, base + ".tess.psm03", "-l", "por", "--oem", "3", "--psm", "3"}}
	wantHOCR := call{Name: "tesseract", Args: []string{image, base + ".tess.psm11", "-l", "por", "--oem", "3", "--psm", "11", "hocr"}}
	if diff := cmp.Diff(wantFirst, r.calls[1]); diff != "" {
		t.Fatalf("first invocation mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantHOCR, r.calls[4]); diff != "" {
		t.Fatalf("last invocation mismatch (-want +got):\n%s", diff)
	}
	if got := out.Invocations[3].OutPath; got != base+".tess.psm11.hocr" {
		t.Fatalf("OutPath = %q", got)
	}
	if out.OutTxt != base+".tess.psm03.txt" {
		t.Fatalf("OutTxt = %q", out.OutTxt)
	}
}

func TestTesseractVersionProbedOnce(t *testing.T) {
	r := &fakeRunner{stdout: map[string]string{"--version": "tesseract 5.3.0"}}
	cache := NewHandleCache()
	tess := NewTesseract(TesseractConfig{PSM: []int{6}}, cache, WithRunner(r))
	for i := 0; i < 3; i++ {
		if _, err := tess.Run(context.Background(), "/x/p.jpg"); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	if n := r.count("--version"); n != 1 {
		t.Fatalf("version probed %d times, want 1", n)
	}

	cache.Invalidate()
	tess.Version(context.Background())
	if n := r.count("--version"); n != 2 {
		t.Fatalf("version probed %d times after invalidate, want 2", n)
	}
}

func TestTesseractVersionUnknown(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{"--version": errors.New("exec: not found")}}
	tess := NewTesseract(TesseractConfig{}, nil, WithRunner(r))
	if got := tess.Version(context.Background()); got != "unknown (exec: not found)" {
		t.Fatalf("Version = %q", got)
	}
}

func TestTesseractDryRun(t *testing.T) {
	r := &fakeRunner{stdout: map[string]string{"--version": "tesseract 5"}}
	tess := NewTesseract(TesseractConfig{PSM: []int{4}, DryRun: true}, nil, WithRunner(r))
	out, err := tess.Run(context.Background(), "/x/p.jpg")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(r.calls) != 1 {
		t.Fatalf("dry run should only probe the version, got %d calls", len(r.calls))
	}
	inv := out.Invocations[0]
	if inv.Stderr != "DRY-RUN" || inv.ExitCode != 0 || inv.OutPath != "/x/p.tess.psm04.txt" {
		t.Fatalf("unexpected invocation %+v", inv)
	}
}

func TestTesseractFailureRecorded(t *testing.T) {
	r := &fakeRunner{
		stdout: map[string]string{"--version": "tesseract 5"},
		stderr: map[string]string{"/x/p.jpg": "  Error opening data file\n"},
		errs:   map[string]error{"/x/p.jpg": errors.New("exit status 1")},
	}
	tess := NewTesseract(TesseractConfig{PSM: []int{3}}, nil, WithRunner(r))
	out, err := tess.Run(context.Background(), "/x/p.jpg")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	inv := out.Invocations[0]
	if inv.ExitCode != 1 || inv.Stderr != "Error opening data file" {
		t.Fatalf("unexpected invocation %+v", inv)
	}
	if out.OutTxt != "" {
		t.Fatalf("failed run should not report a txt output, got %q", out.OutTxt)
	}
}

func TestMeanTSVConfidence(t *testing.T) {
	tsv := strings.Join([]string{
		"level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext",
		"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t",
		"5\t1\t1\t1\t1\t1\t10\t10\t20\t10\t90\tTexto",
		"5\t1\t1\t1\t1\t2\t40\t10\t20\t10\t70\tcorreto",
	}, "\n")
	got, ok := MeanTSVConfidence([]byte(tsv))
	if !ok || got < 0.7999 || got > 0.8001 {
		t.Fatalf("MeanTSVConfidence = (%v, %v), want 0.8", got, ok)
	}
	if _, ok := MeanTSVConfidence([]byte("level\tconf\n")); ok {
		t.Fatal("expected no confidence for empty tsv")
	}
}

func TestCommandProviderRun(t *testing.T) {
	dir := t.TempDir()
	image := filepath.Join(dir, "page01.jpg")
	r := &fakeRunner{stdout: map[string]string{
		"-l": "Texto correto\n([[1, 2], [3, 4]], 'Linha dois', 0.87)\n\n",
	}}
	lookups := 0
	lookPath := func(name string) (string, error) {
		lookups++
		return "/usr/bin/" + name, nil
	}
	cache := NewHandleCache()
	p, err := NewCommandProvider(CommandConfig{
		Engine:  "easyocr",
		Command: "easyocr",
		Args:    []string{"-l", "{langs}", "-f", "{image}", "--gpu", "{gpu}"},
		Langs:   []string{"pt", "en"},
	}, cache, WithRunner(r), WithLookPath(lookPath))
	if err != nil {
		t.Fatalf("NewCommandProvider: %v", err)
	}

	out, err := p.Run(context.Background(), image)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Available || out.Text != "Texto correto\nLinha dois" {
		t.Fatalf("unexpected output %+v", out)
	}
	wantCall := call{Name: "/usr/bin/easyocr", Args: []string{"-l", "pt,en", "-f", image, "--gpu", "False"}}
	if diff := cmp.Diff(wantCall, r.calls[0]); diff != "" {
		t.Fatalf("call mismatch (-want +got):\n%s", diff)
	}

	txt, err := os.ReadFile(filepath.Join(dir, "page01.easy.txt"))
	if err != nil || string(txt) != "Texto correto\nLinha dois" {
		t.Fatalf("txt output = %q, %v", txt, err)
	}
	sidecar, err := os.ReadFile(filepath.Join(dir, "page01.easy.json"))
	if err != nil || !strings.Contains(string(sidecar), `"engine": "easyocr"`) {
		t.Fatalf("json sidecar = %s, %v", sidecar, err)
	}

	if _, err := p.Run(context.Background(), image); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if lookups != 1 {
		t.Fatalf("binary resolved %d times, want 1", lookups)
	}
	cache.Invalidate()
	if !p.Available(context.Background()) || lookups != 2 {
		t.Fatalf("expected re-resolution after invalidate, lookups = %d", lookups)
	}
}

func TestCommandProviderNotInstalled(t *testing.T) {
	r := &fakeRunner{}
	missing := func(string) (string, error) { return "", errors.New("not found") }
	p, err := NewCommandProvider(CommandConfig{Engine: "paddle", Command: "paddleocr"}, nil, WithRunner(r), WithLookPath(missing))
	if err != nil {
		t.Fatalf("NewCommandProvider: %v", err)
	}
	out, err := p.Run(context.Background(), "/x/p.jpg")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Available || out.Error != "paddle not installed" {
		t.Fatalf("unexpected output %+v", out)
	}
	if len(r.calls) != 0 {
		t.Fatalf("missing engine must not be executed")
	}
	if p.CandidateKey() != "paddle" {
		t.Fatalf("CandidateKey = %q", p.CandidateKey())
	}
}

func TestNewCommandProviderRejectsUnknownEngine(t *testing.T) {
	if _, err := NewCommandProvider(CommandConfig{Engine: "abbyy", Command: "x"}, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseLines(t *testing.T) {
	conf := func(v float64) *float64 { return &v }
	stdout := strings.Join([]string{
		"[2024/05/01 10:00:00] ppocr DEBUG: dt_boxes num : 2",
		"[2024/05/01 10:00:01] ppocr INFO: [[[10.0, 5.0], [90.0, 5.0]], ('NOTA FISCAL', 0.9876)]",
		`{"text": "Total R$ 10,50", "confidence": 0.5}`,
		`([[0, 0]], "It's", 0.75)`,
		"plain line\r",
		"   ",
	}, "\n")
	want := []Line{
		{Text: "NOTA FISCAL", Conf: conf(0.9876)},
		{Text: "Total R$ 10,50", Conf: conf(0.5)},
		{Text: "It's", Conf: conf(0.75)},
		{Text: "plain line"},
	}
	if diff := cmp.Diff(want, ParseLines(stdout)); diff != "" {
		t.Fatalf("ParseLines mismatch (-want +got):\n%s", diff)
	}
}

func TestLibraryProviderStubOrReal(t *testing.T) {
	p, err := NewLibraryProvider(LibraryConfig{})
	if err != nil {
		if !errors.Is(err, ErrLibraryOCRDisabled) {
			t.Fatalf("unexpected error %v", err)
		}
		return
	}
	if p.Key() != "tesseract" {
		t.Fatalf("Key = %q", p.Key())
	}
}
