package constants

import "strings"

// ImageFormats holds the wire formats accepted for submission.
var ImageFormats = []string{"JPEG", "PNG", "GIF", "WEBP", "HEIC", "PDF"}

// AllowedExtensions holds the default allowed upload extensions.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"webp": {},
	"heic": {},
	"heif": {},
	"pdf":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
