package constants

import "strings"

// IMAGE is the only source format the scanner accepts.
const IMAGE = "IMAGE"

// ImageConfidenceThreshold flags OCR output below this blended confidence for review.
const ImageConfidenceThreshold = 0.6

// AllowedExtensions holds the image extensions accepted for document ingestion.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"bmp":  {},
	"webp": {},
	"heic": {},
	"heif": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns IMAGE for an allowed extension and "" otherwise.
func MapExtToFormat(ext string) string {
	if _, ok := AllowedExtensions[NormalizeExt(ext)]; ok {
		return IMAGE
	}
	return ""
}

func IsHEICExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "heic", "heif":
		return true
	}
	return false
}
