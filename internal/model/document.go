// Package model holds the domain types shared by the repository, service and HTTP layers.
package model

import "time"

// Document is one uploaded PDF: the metadata row plus the blob stored at FilePath.
// Documents are immutable once created; there is no update path.
type Document struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	FilePath  string    `json:"filepath"`
	FileSize  int64     `json:"filesize"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
