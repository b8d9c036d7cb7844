package constants

import "strings"

// Manifest formats written by the tesseract provider.
var OutputFormats = []string{"txt", "tsv", "hocr", "pdf"}

// ImageExtensions holds the file extensions accepted as page images during discovery.
var ImageExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"bmp":  {},
	"pbm":  {},
	"pgm":  {},
	"ppm":  {},
	"webp": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsImageExt reports whether ext (with or without the dot) is a supported page image.
func IsImageExt(ext string) bool {
	_, ok := ImageExtensions[NormalizeExt(ext)]
	return ok
}

// IsOutputFormat reports whether f is a format tesseract can be asked to emit.
func IsOutputFormat(f string) bool {
	for _, v := range OutputFormats {
		if v == f {
			return true
		}
	}
	return false
}
