package constants

import "strings"

// AllowedExtensions holds the file extensions accepted by the upload endpoint.
var AllowedExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"pdf":  {},
	"doc":  {},
	"docx": {},
}

// AllowedMimeTypes holds the MIME types accepted by the upload endpoint.
var AllowedMimeTypes = map[string]struct{}{
	"image/png":          {},
	"image/jpeg":         {},
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

// FileSizeLimit caps uploaded file size at 2MB.
const FileSizeLimit = 2 * 1024 * 1024

// Upload error messages surfaced to API callers.
const (
	ErrMsgInvalidFileType = "Only PDF, Word, PNG, and JPEG files are allowed."
	ErrMsgFileTooLarge    = "File size exceeds the 2MB limit."
	ErrMsgFileRequired    = "A file is required."
)

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
