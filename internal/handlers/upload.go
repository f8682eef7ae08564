package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ukydev/fleet-backoffice/internal/apperr"
	"github.com/ukydev/fleet-backoffice/internal/storage"
)

const defaultUploadMax = 10 << 20

var (
	errFileTooLarge = apperr.New(http.StatusRequestEntityTooLarge, "file is too large")
	errBadUpload    = apperr.BadRequest("malformed multipart upload")
)

// upload is one file read from a multipart form.
type upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// readUpload reads form field field from a multipart request. The content
// type is sniffed from the bytes; images are downscaled before storage.
func (d *Deps) readUpload(w http.ResponseWriter, r *http.Request, field string) (*upload, error) {
	limit := d.Settings.UploadMaxBytes
	if limit <= 0 {
		limit = defaultUploadMax
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errFileTooLarge
		}
		return nil, errBadUpload
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, apperr.BadRequest(field + " file is required")
	}
	defer file.Close()
	if header.Size > limit {
		return nil, errFileTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, errBadUpload
	}
	if int64(len(data)) > limit {
		return nil, errFileTooLarge
	}
	if len(data) == 0 {
		return nil, storage.ErrEmptyFile
	}

	ct := http.DetectContentType(data)
	if !storage.Allowed(ct) {
		return nil, storage.ErrUnsupportedType
	}
	if storage.IsImage(ct) {
		if data, err = storage.Shrink(data, ct, storage.MaxImageDimension); err != nil {
			return nil, apperr.BadRequest("image could not be decoded")
		}
	}
	return &upload{Name: header.Filename, ContentType: ct, Data: data}, nil
}

// put stores u under key and returns its public URL.
func (d *Deps) put(ctx context.Context, key string, u *upload) (string, error) {
	return d.Storage.Upload(ctx, key, bytes.NewReader(u.Data), int64(len(u.Data)), u.ContentType)
}

// discard deletes a stored object, logging failures.
func (d *Deps) discard(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := d.Storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		d.Logger.WithError(err).WithField("key", key).Warn("failed to delete stored file")
	}
}
