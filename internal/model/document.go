// Package model defines the core data structures for the statement parsing pipeline.
package model

import (
	"bytes"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileType identifies how a document's bytes should be read.
type FileType string

// Supported file types.
const (
	FileTypePDF         FileType = "pdf"
	FileTypeCSV         FileType = "csv"
	FileTypeSpreadsheet FileType = "spreadsheet"
	FileTypeJSON        FileType = "json"
	FileTypeText        FileType = "text"
	FileTypeOFX         FileType = "ofx"
)

// AllFileTypes lists every file type the pipeline understands.
var AllFileTypes = []FileType{
	FileTypePDF,
	FileTypeCSV,
	FileTypeSpreadsheet,
	FileTypeJSON,
	FileTypeText,
	FileTypeOFX,
}

// IsValid reports whether ft is one of the supported file types.
func (ft FileType) IsValid() bool {
	for _, known := range AllFileTypes {
		if ft == known {
			return true
		}
	}
	return false
}

// IsTabular reports whether the file type carries rows and columns.
func (ft FileType) IsTabular() bool {
	switch ft {
	case FileTypeCSV, FileTypeSpreadsheet, FileTypeOFX, FileTypeJSON:
		return true
	}
	return false
}

// DocumentStatus tracks a document's processing state.
type DocumentStatus string

// Document status constants.
const (
	DocumentUploaded    DocumentStatus = "uploaded"
	DocumentProcessing  DocumentStatus = "processing"
	DocumentParsed      DocumentStatus = "parsed"
	DocumentNeedsReview DocumentStatus = "needs_review"
	DocumentFailed      DocumentStatus = "failed"
)

// Document is one uploaded statement. It is immutable once submitted.
type Document struct {
	UploadedAt time.Time
	ID         string
	OwnerID    string
	Name       string
	FileType   FileType
	Password   string
	Content    []byte
}

// NewDocument creates a document with a fresh identifier. When fileType is
// empty it is sniffed from the name and content.
func NewDocument(ownerID, name string, content []byte, fileType FileType) Document {
	if fileType == "" {
		fileType = SniffFileType(name, content)
	}
	return Document{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       name,
		FileType:   fileType,
		Content:    content,
		UploadedAt: time.Now(),
	}
}

// SniffFileType guesses a file type from the file extension, falling back to
// magic bytes.
func SniffFileType(name string, content []byte) FileType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FileTypePDF
	case ".csv", ".tsv":
		return FileTypeCSV
	case ".xlsx", ".xlsm", ".xls":
		return FileTypeSpreadsheet
	case ".json":
		return FileTypeJSON
	case ".ofx", ".qfx":
		return FileTypeOFX
	case ".txt", ".text":
		return FileTypeText
	}

	head := bytes.TrimSpace(content)
	if len(head) > 512 {
		head = head[:512]
	}
	switch {
	case bytes.HasPrefix(head, []byte("%PDF")):
		return FileTypePDF
	case bytes.HasPrefix(head, []byte("PK\x03\x04")), bytes.HasPrefix(head, []byte("\xD0\xCF\x11\xE0")):
		return FileTypeSpreadsheet
	case bytes.HasPrefix(head, []byte("OFXHEADER")), bytes.Contains(head, []byte("<OFX>")):
		return FileTypeOFX
	case bytes.HasPrefix(head, []byte("[")), bytes.HasPrefix(head, []byte("{")):
		return FileTypeJSON
	}
	return FileTypeText
}
