// Package export renders MOM and JIK aggregates to PDF and DOCX.
package export

import "errors"

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Result is one rendered artifact, ready to stream.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable means the stored content sections could not be decoded.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing means no Chrome binary was found.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing means pandoc is not installed.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
