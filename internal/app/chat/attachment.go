package chat

import (
	"path/filepath"
	"strings"

	"buzzchat/internal/app/storage"
	"buzzchat/internal/pkg/errs"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// MaxAttachmentSizeMB is the maximum allowed image size in megabytes.
	MaxAttachmentSizeMB = 5

	// MaxAttachmentSize is the maximum allowed image size in bytes.
	MaxAttachmentSize = MaxAttachmentSizeMB * 1024 * 1024
)

// ExtToMIME maps the accepted image extensions to their MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// ValidateFileSize checks if the provided file size is within acceptable limits.
func ValidateFileSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if fileSize > MaxAttachmentSize {
		return errs.NewError(errs.ErrFileSizeTooLarge, MaxAttachmentSizeMB)
	}
	return nil
}

// ValidateFileType accepts JPEG and PNG images whose extension agrees with mimeType.
func ValidateFileType(fileName, mimeType string) *errs.CustomError {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	ext := strings.ToLower(filepath.Ext(fileName))

	expected, ok := ExtToMIME[ext]
	if !ok || expected != mimeType {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}
	return nil
}

// ValidateImage runs every attachment check and returns the extension to store the image under.
func ValidateImage(fileName, mimeType string, size int64) (string, *errs.CustomError) {
	if err := ValidateFileSize(size); err != nil {
		return "", err
	}
	if err := ValidateFileType(fileName, mimeType); err != nil {
		return "", err
	}
	return strings.ToLower(filepath.Ext(fileName)), nil
}

// SniffImage returns the MIME type detected from the content itself, so a
// renamed file cannot pass as an image.
func SniffImage(data []byte) string {
	return mimetype.Detect(data).String()
}

// ValidImageURL accepts download URLs produced by the blob store and external https links.
func ValidImageURL(raw string) bool {
	if _, ok := storage.KeyFromDownloadURL(raw); ok {
		return true
	}
	return linkRe.MatchString(raw) && strings.HasPrefix(raw, "https://")
}
