package fetch

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/MaTriXy/Sketch/request"
	"github.com/MaTriXy/Sketch/source"
)

// Base64Spec selects a base64 alphabet for data URIs.
type Base64Spec string

const (
	Base64Default Base64Spec = "Default"
	// Base64Mime tolerates line breaks in the payload.
	Base64Mime    Base64Spec = "Mime"
	Base64UrlSafe Base64Spec = "UrlSafe"
)

const dataScheme = "data:"

// NewBase64URI builds a data URI carrying data.
func NewBase64URI(mimeType string, data []byte, spec Base64Spec) string {
	var payload string
	switch spec {
	case Base64UrlSafe:
		payload = base64.URLEncoding.EncodeToString(data)
	default:
		payload = base64.StdEncoding.EncodeToString(data)
	}
	return dataScheme + mimeType + ";base64," + payload
}

// ParseBase64URI splits a data URI into its MIME type and payload. The MIME
// type is the text between ':' and ';' with "img/" normalized to "image/";
// the payload is everything after the first ','.
func ParseBase64URI(uri string) (mimeType, payload string, err error) {
	if !strings.HasPrefix(uri, dataScheme) {
		return "", "", &request.UriInvalidError{URI: uri, Reason: "not a data uri"}
	}
	colon := strings.IndexByte(uri, ':')
	semi := strings.IndexByte(uri, ';')
	comma := strings.IndexByte(uri, ',')
	if semi == -1 || comma == -1 || semi < colon || comma < semi {
		return "", "", &request.UriInvalidError{URI: truncate(uri), Reason: "expected data:<mimeType>;base64,<payload>"}
	}
	mimeType = strings.TrimSpace(uri[colon+1 : semi])
	if rest, ok := strings.CutPrefix(mimeType, "img/"); ok {
		mimeType = "image/" + rest
	}
	return mimeType, uri[comma+1:], nil
}

// Base64Factory decodes data: URIs. The alphabet comes from the request extra
// request.ExtraBase64Spec and defaults to Base64Default.
type Base64Factory struct{}

// NewBase64Factory returns a factory for data URIs.
func NewBase64Factory() *Base64Factory { return &Base64Factory{} }

func (Base64Factory) Create(req *request.Request) (Fetcher, bool, error) {
	if !strings.HasPrefix(req.URI(), dataScheme) {
		return nil, false, nil
	}
	mimeType, payload, err := ParseBase64URI(req.URI())
	if err != nil {
		return nil, true, err
	}
	spec := Base64Default
	if v, ok := req.Extras().GetString(request.ExtraBase64Spec); ok {
		spec = Base64Spec(v)
	}
	switch spec {
	case Base64Default, Base64Mime, Base64UrlSafe:
	default:
		return nil, true, &request.UriInvalidError{URI: truncate(req.URI()), Reason: fmt.Sprintf("unknown base64 spec %q", spec)}
	}
	return &base64Fetcher{uri: req.URI(), mimeType: mimeType, payload: payload, spec: spec}, true, nil
}

type base64Fetcher struct {
	uri      string
	mimeType string
	payload  string
	spec     Base64Spec
}

func (b *base64Fetcher) Fetch(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := decodeBase64(b.payload, b.spec)
	if err != nil {
		return nil, &Error{URI: truncate(b.uri), Err: fmt.Errorf("fetch: decode base64: %w", err)}
	}
	mimeType := b.mimeType
	if mimeType == "" {
		mimeType = SniffMimeType(data)
	}
	return &Result{Source: source.NewBytes(data, source.Memory), MimeType: mimeType}, nil
}

func decodeBase64(payload string, spec Base64Spec) ([]byte, error) {
	enc, raw := base64.StdEncoding, base64.RawStdEncoding
	switch spec {
	case Base64UrlSafe:
		enc, raw = base64.URLEncoding, base64.RawURLEncoding
	case Base64Mime:
		payload = strings.Map(func(r rune) rune {
			if r == '\r' || r == '\n' || r == ' ' || r == '\t' {
				return -1
			}
			return r
		}, payload)
	}
	data, err := enc.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	if data, rawErr := raw.DecodeString(strings.TrimRight(payload, "=")); rawErr == nil {
		return data, nil
	}
	return nil, err
}

func truncate(uri string) string {
	const limit = 64
	if len(uri) <= limit {
		return uri
	}
	return uri[:limit] + "..."
}
