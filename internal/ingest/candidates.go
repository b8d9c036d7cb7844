package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/ocr-fusion/constants"
)

const (
	tessInfix   = ".tess.psm"
	txtSuffix   = ".txt"
	paddleTxt   = "." + constants.KeyPaddle + txtSuffix
	easyTxt     = "." + constants.KeyEasy + txtSuffix
	psmDigitLen = 2
)

// ListCandidates maps candidate keys to the engine output files present next to base.
func ListCandidates(base string) (map[string]string, error) {
	dir, name := filepath.Split(base)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list candidates of %s: %w", base, err)
	}
	out := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fn := e.Name()
		switch {
		case fn == name+paddleTxt:
			out[constants.KeyPaddle] = filepath.Join(dir, fn)
		case fn == name+easyTxt:
			out[constants.KeyEasy] = filepath.Join(dir, fn)
		default:
			if psm, ok := tessPSM(fn, name); ok {
				out[constants.TessKeyPrefix+psm] = filepath.Join(dir, fn)
			}
		}
	}
	return out, nil
}

// tessPSM extracts NN from "<name>.tess.psmNN.txt".
func tessPSM(filename, name string) (string, bool) {
	rest, ok := strings.CutPrefix(filename, name+tessInfix)
	if !ok {
		return "", false
	}
	psm, ok := strings.CutSuffix(rest, txtSuffix)
	if !ok || len([]rune(psm)) != psmDigitLen {
		return "", false
	}
	return psm, true
}

// LoadCandidates reads every candidate file of base. Empty files are skipped.
func LoadCandidates(base string) (map[string]string, error) {
	paths, err := ListCandidates(base)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(paths))
	for key, p := range paths {
		text, ok, err := ReadTextIfExists(p)
		if err != nil {
			return nil, err
		}
		if ok && text != "" {
			out[key] = text
		}
	}
	return out, nil
}

// PageBaseForFile maps an engine output or gold file back to its page base.
// Files that belong to no page (including hypothesis outputs) report false.
func PageBaseForFile(path, goldSuffix string) (string, bool) {
	dir, fn := filepath.Split(path)
	for _, suffix := range []string{paddleTxt, easyTxt, goldSuffix} {
		if suffix == "" {
			continue
		}
		if name, ok := strings.CutSuffix(fn, suffix); ok && name != "" {
			return filepath.Join(dir, name), true
		}
	}
	if i := strings.LastIndex(fn, tessInfix); i > 0 {
		if _, ok := tessPSM(fn, fn[:i]); ok {
			return filepath.Join(dir, fn[:i]), true
		}
	}
	return "", false
}
