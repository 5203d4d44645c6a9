package service

import (
	"io"
	"strings"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
)

// MaxFileBytes is the largest accepted upload (50 MiB, inclusive).
const MaxFileBytes int64 = 50 << 20

type ValidationKind string

const (
	MissingFile       ValidationKind = "missing_file"
	WrongMediaType    ValidationKind = "wrong_media_type"
	FileTooLarge      ValidationKind = "file_too_large"
	MissingURL        ValidationKind = "missing_url"
	MissingTrackName  ValidationKind = "missing_track_name"
	UnknownSourceKind ValidationKind = "unknown_source_kind"
)

var validationMessages = map[ValidationKind]string{
	MissingFile:       "Please select a file to upload",
	WrongMediaType:    "Please upload an audio file",
	FileTooLarge:      "File size must be 50MB or less",
	MissingURL:        "Please enter a URL",
	MissingTrackName:  "Please enter a track name",
	UnknownSourceKind: "Please choose a file upload or a URL",
}

// ValidationError is a user-correctable input problem. Nothing has been
// uploaded or written when it is returned.
type ValidationError struct {
	Kind ValidationKind
}

func (e *ValidationError) Error() string {
	return validationMessages[e.Kind]
}

// File is an asset offered for upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type SubmitInput struct {
	SourceKind models.SourceKind
	File       *File
	URL        string
	TrackName  string
	Message    string
}

// ValidateInput checks in without touching any backend. URLs are only
// required to be non-blank.
func ValidateInput(in SubmitInput) error {
	if strings.TrimSpace(in.TrackName) == "" {
		return &ValidationError{Kind: MissingTrackName}
	}
	if !in.SourceKind.Valid() {
		return &ValidationError{Kind: UnknownSourceKind}
	}
	switch in.SourceKind {
	case models.SourceFileUpload:
		if in.File == nil {
			return &ValidationError{Kind: MissingFile}
		}
		if !strings.Contains(strings.ToLower(in.File.ContentType), "audio") {
			return &ValidationError{Kind: WrongMediaType}
		}
		if in.File.Size > MaxFileBytes {
			return &ValidationError{Kind: FileTooLarge}
		}
	case models.SourceExternalURL:
		if strings.TrimSpace(in.URL) == "" {
			return &ValidationError{Kind: MissingURL}
		}
	}
	return nil
}
