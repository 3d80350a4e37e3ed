package fileupload

import (
	"os"
	"strings"
)

// ContentTypePlaceholder stands in for "/" when a MIME type is carried in a
// single URL path segment. Existing clients depend on this exact token.
//
// Decoding is lossy when the input has "__" of its own or an "_" next to a
// "/": "a_/b" encodes to "a___b" and decodes to "a/_b". Registered MIME types
// have neither.
const ContentTypePlaceholder = "__"

func EncodeContentType(contentType string) string {
	return strings.ReplaceAll(contentType, "/", ContentTypePlaceholder)
}

func DecodeContentType(token string) string {
	return strings.ReplaceAll(token, ContentTypePlaceholder, "/")
}

// NormalizeFileName turns an opaque key into a flat file name: parent
// references are dropped, surrounding spaces and separators trimmed, and any
// remaining separator replaced so the name cannot create sub-directories.
func NormalizeFileName(key string) string {
	name := strings.ReplaceAll(key, "..", "")
	name = strings.Trim(name, "/ "+string(os.PathSeparator))
	name = strings.ReplaceAll(name, "/", "_")
	if os.PathSeparator != '/' {
		name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	}
	return name
}
