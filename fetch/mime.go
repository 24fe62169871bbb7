package fetch

import (
	"mime"
	"net/http"
	"path"
	"strings"
)

// MimeTypeFromExtension guesses a MIME type from name's extension.
// It returns "" when the extension is unknown.
func MimeTypeFromExtension(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	return stripParams(mime.TypeByExtension(ext))
}

// SniffMimeType detects the MIME type of data from its leading bytes.
// It returns "" when data does not look like any known type.
func SniffMimeType(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	t := stripParams(http.DetectContentType(data))
	if t == "application/octet-stream" {
		return ""
	}
	return t
}

func stripParams(t string) string {
	if t == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil {
		return strings.TrimSpace(strings.SplitN(t, ";", 2)[0])
	}
	return mediaType
}
