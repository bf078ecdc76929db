package vision

import (
	"encoding/base64"
	"errors"
	"strings"
)

var (
	ErrInvalidDataURI = errors.New("photo must be a base64 data URI: data:<mimetype>;base64,<data>")
	ErrNotAnImage     = errors.New("only image uploads are accepted")
)

// ParseDataURI decodes "data:<mime>;base64,<data>" into its payload and media type.
func ParseDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return nil, "", ErrInvalidDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", ErrInvalidDataURI
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok || mimeType == "" {
		return nil, "", ErrInvalidDataURI
	}
	if !IsImageType(mimeType) {
		return nil, "", ErrNotAnImage
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", ErrInvalidDataURI
	}
	return data, strings.ToLower(mimeType), nil
}

// IsImageType reports whether a media type is image/*.
func IsImageType(mimeType string) bool {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

// Extension picks a file extension for a stored image of mimeType.
func Extension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	default:
		return ".img"
	}
}
