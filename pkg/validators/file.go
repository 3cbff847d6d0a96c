package validators

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrNoFile              = errors.New("Please upload a file")
	ErrFileTooLarge        = errors.New("File too large")
	ErrFileNameTooLong     = errors.New("File name is too long")
	ErrFileTypeUnsupported = errors.New("File type not supported! Supported types: PDF, Images (JPG, PNG, GIF), Word, PowerPoint, Text files")
)

const (
	DefaultMaxUploadSize = 25 << 20
	maxFileNameSize      = 200 // Leaves room for the timestamp prefix of the blob key
	octetStream          = "application/octet-stream"
)

var DefaultAllowedTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain",
}

type UploadRules struct {
	MaxSize      int64
	AllowedTypes []string
}

func DefaultUploadRules() UploadRules {
	return UploadRules{
		MaxSize:      DefaultMaxUploadSize,
		AllowedTypes: DefaultAllowedTypes,
	}
}

// BaseType strips parameters such as charset and lowercases the type
func BaseType(ct string) string {
	if ct == "" {
		return ""
	}

	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	}

	return mt
}

func (r UploadRules) Allowed(ct string) bool {
	return slices.Contains(r.AllowedTypes, BaseType(ct))
}

// ResolveType returns the declared type, or sniffs the content when the
// client didn't declare anything useful. The returned reader yields the full
// content again, including any bytes consumed by sniffing.
func ResolveType(declared string, r io.Reader) (string, io.Reader, error) {
	if bt := BaseType(declared); bt != "" && bt != octetStream {
		return bt, r, nil
	}

	mt, recycled, err := sniff(r)
	if err != nil {
		return "", nil, err
	}

	return BaseType(mt), recycled, nil
}

func sniff(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, 3072)

	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	head = head[:n]

	return mimetype.Detect(head).String(), io.MultiReader(bytes.NewReader(head), r), nil
}

// CheckUpload validates everything that's known before the transfer starts.
// The size is what the client declared, it is enforced again while reading.
func (r UploadRules) CheckUpload(fileName, mimeType string, size int64) error {
	if fileName == "" {
		return ErrNoFile
	}

	if len(fileName) > maxFileNameSize {
		return ErrFileNameTooLong
	}

	if !r.Allowed(mimeType) {
		return ErrFileTypeUnsupported
	}

	if r.MaxSize > 0 && size > r.MaxSize {
		return ErrFileTooLarge
	}

	return nil
}
