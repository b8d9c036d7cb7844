package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/joseph-ayodele/ocr-fusion/constants"
)

// DiscoverImages returns the page images under root matching pattern, sorted.
// The pattern is slash-separated and relative to root; "**" spans directories.
func DiscoverImages(root, pattern string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("input dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input dir %s is not a directory", abs)
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob %q", pattern)
	}

	matches, err := doublestar.Glob(os.DirFS(abs), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !AllowedExt(filepath.Ext(m)) {
			continue
		}
		out = append(out, filepath.Join(abs, filepath.FromSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}

// BaseForImage strips the extension of a page image: dir/page01.jpg -> dir/page01.
func BaseForImage(image string) string {
	return image[:len(image)-len(filepath.Ext(image))]
}

// DocID is the page name used in datasets.
func DocID(base string) string {
	return filepath.Base(base)
}

// AllowedExt reports whether ext names a page image format.
func AllowedExt(ext string) bool {
	return constants.IsImageExt(ext)
}
