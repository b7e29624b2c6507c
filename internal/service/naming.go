package service

import (
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"time"
)

const (
	// PDFMediaType is the only media type accepted for upload and the one every stream is served with.
	PDFMediaType = "application/pdf"
	// MaxUploadSize is the largest accepted upload in bytes.
	MaxUploadSize int64 = 10 << 20
	// UploadPrefix is the single directory (or key prefix) holding every blob.
	UploadPrefix = "uploads"

	randomNameBound = 1_000_000_000
)

// ValidateUpload accepts or rejects an upload from its declared media type and size.
// Media type parameters (e.g. "; name=x") are ignored; comparison is case-insensitive.
func ValidateUpload(contentType string, size int64) error {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt != PDFMediaType {
		return ErrUnsupportedType
	}
	if size > MaxUploadSize {
		return ErrFileTooLarge
	}
	return nil
}

// GenerateStorageName returns "<unix-millis>-<rnd><ext>" where ext is the extension of
// originalName including the dot, or empty.
func GenerateStorageName(now time.Time, rnd int64, originalName string) string {
	return fmt.Sprintf("%d-%d%s", now.UnixMilli(), rnd, filepath.Ext(originalName))
}

// StorageKey places a generated name in the upload directory.
func StorageKey(name string) string {
	return path.Join(UploadPrefix, name)
}
