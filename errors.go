package orderdoc

import "errors"

var (
	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("orderdoc: document not found")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("orderdoc: unsupported document format")

	// ErrParsingFailed is returned when a document cannot be decoded at all.
	// Failures of single pages are reported on the page instead.
	ErrParsingFailed = errors.New("orderdoc: parsing failed")

	// ErrCropFailed is returned when a PDF cannot be cut into label and
	// invoice documents.
	ErrCropFailed = errors.New("orderdoc: crop failed")

	// ErrStoreClosed is returned when operating on a closed engine.
	ErrStoreClosed = errors.New("orderdoc: store is closed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("orderdoc: invalid configuration")
)
