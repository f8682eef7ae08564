// Package storage keeps uploaded documents (proof of delivery, receipts) in
// an S3-compatible object store.
package storage

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
)

var (
	ErrUnsupportedType = apperr.BadRequest("only image and PDF files are allowed")
	ErrEmptyFile       = apperr.BadRequest("please upload a file")
	ErrDisabled        = apperr.New(http.StatusServiceUnavailable, "file storage is not configured")
)

var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// ObjectStorage stores and removes objects by key.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Allowed reports whether contentType may be uploaded.
func Allowed(contentType string) bool {
	_, ok := allowedTypes[normalizeType(contentType)]
	return ok
}

// IsImage reports whether contentType is one of the allowed image types.
func IsImage(contentType string) bool {
	ct := normalizeType(contentType)
	return Allowed(ct) && strings.HasPrefix(ct, "image/")
}

func normalizeType(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

// NewKey returns prefix/yyyy/mm/<uuid><ext> for a file of contentType. The
// extension follows the detected content type, never the uploaded name.
func NewKey(prefix, contentType string, now time.Time) string {
	ext := allowedTypes[normalizeType(contentType)]
	return path.Join(strings.Trim(prefix, "/"), now.Format("2006/01"), uuid.NewString()+ext)
}

// Disabled rejects every upload.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", ErrDisabled
}

func (Disabled) Delete(context.Context, string) error { return nil }
