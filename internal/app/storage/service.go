/*
Package storage stores uploaded chat images.

Objects are addressed by key. Messages never hold a signed URL: they carry the
stable download URL built by DownloadURL, which the HTTP layer resolves to a
short-lived presigned URL on every request.
*/
package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DownloadPath is the route that resolves a key into a download.
const DownloadPath = "/api/file/download"

// DownloadURLTTL is how long a presigned download URL stays valid.
const DownloadURLTTL = 15 * time.Minute

// ErrObjectNotFound is returned for keys that hold no object.
var ErrObjectNotFound = errors.New("storage: object not found")

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	Region            string
}

// Service is the blob store contract.
type Service interface {
	// Upload stores body under key.
	Upload(ctx context.Context, key, contentType string, body []byte) error

	// PresignDownload returns a URL that fetches key for ttl.
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error
}

// Reader is implemented by services that serve object bytes themselves
// instead of handing out presigned URLs.
type Reader interface {
	Get(ctx context.Context, key string) (body []byte, contentType string, err error)
}

// NewStorageService returns the S3-compatible implementation.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (Service, error) {
	return newS3Client(ctx, cfg)
}

// ImageKey returns a fresh key for an image uploaded by userID. ext includes the dot.
func ImageKey(userID, ext string) string {
	return "images/" + userID + "/" + uuid.NewString() + strings.ToLower(ext)
}

// DownloadURL is the stable, app-relative URL of key.
func DownloadURL(key string) string {
	return DownloadPath + "?k=" + url.QueryEscape(key)
}

// KeyFromDownloadURL reverses DownloadURL.
func KeyFromDownloadURL(raw string) (string, bool) {
	if !strings.HasPrefix(raw, DownloadPath+"?") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	key := u.Query().Get("k")
	return key, ValidKey(key)
}

// ValidKey accepts the keys produced by ImageKey.
func ValidKey(key string) bool {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != "images" {
		return false
	}
	for _, p := range parts[1:] {
		if p == "" || p == "." || p == ".." {
			return false
		}
	}
	return true
}
