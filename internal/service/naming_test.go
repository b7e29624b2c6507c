package service

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		size        int64
		wantErr     error
	}{
		{name: "pdf", contentType: "application/pdf", size: 2048},
		{name: "pdf upper case with params", contentType: "Application/PDF; name=a.pdf", size: 1},
		{name: "empty pdf", contentType: "application/pdf", size: 0},
		{name: "exactly the limit", contentType: "application/pdf", size: MaxUploadSize},
		{name: "one byte over", contentType: "application/pdf", size: MaxUploadSize + 1, wantErr: ErrFileTooLarge},
		{name: "text", contentType: "text/plain", size: 10, wantErr: ErrUnsupportedType},
		{name: "octet stream", contentType: "application/octet-stream", size: 10, wantErr: ErrUnsupportedType},
		{name: "missing type", contentType: "", size: 10, wantErr: ErrUnsupportedType},
		{name: "type checked before size", contentType: "image/png", size: MaxUploadSize + 1, wantErr: ErrUnsupportedType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.contentType, tt.size)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestGenerateStorageName(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	assert.Equal(t, "1700000000123-42.pdf", GenerateStorageName(now, 42, "report.pdf"))
	assert.Equal(t, "1700000000123-7.PDF", GenerateStorageName(now, 7, "scan.final.PDF"))
	assert.Equal(t, "1700000000123-7", GenerateStorageName(now, 7, "noext"))
	assert.NotEqual(t, GenerateStorageName(now, 1, "a.pdf"), GenerateStorageName(now, 2, "a.pdf"))

	assert.Regexp(t, regexp.MustCompile(`^\d+-\d+\.pdf$`), GenerateStorageName(time.Now(), 999999999, "x.pdf"))
}

func TestStorageKey(t *testing.T) {
	assert.Equal(t, "uploads/1-2.pdf", StorageKey("1-2.pdf"))
}

func TestErrorTaxonomy(t *testing.T) {
	assert.True(t, errors.Is(ErrBlobMissing, ErrNotFound))
	assert.False(t, errors.Is(ErrNotFound, ErrBlobMissing))
	assert.False(t, errors.Is(ErrFileRequired, ErrNotFound))

	var ve *ValidationError
	assert.True(t, errors.As(ErrFileTooLarge, &ve))
	assert.Equal(t, "FILE_TOO_LARGE", ve.Code)
}
