package api

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/webpods-org/webpods/internal/corerr"
)

// decodeBody reads a record's payload from the request body, applying
// spec.md §4.6's content-type rule: an explicit X-Content-Type header is
// authoritative; otherwise the Content-Type header is used, falling back
// to content sniffing. A `data:` URI body is unwrapped and base64-decoded;
// any other body is used as-is (the wire already carries raw bytes).
// Bodies larger than maxPayloadSize are rejected with CONTENT_TOO_LARGE.
func decodeBody(r *http.Request, maxPayloadSize uint64) (content []byte, contentType string, err error) {
	limit := int64(maxPayloadSize) + 1
	body, readErr := io.ReadAll(io.LimitReader(r.Body, limit))
	if readErr != nil {
		return nil, "", corerr.Wrap(corerr.InvalidContent, "read request body", readErr)
	}
	if maxPayloadSize > 0 && uint64(len(body)) > maxPayloadSize {
		return nil, "", corerr.New(corerr.ContentTooLarge, "content exceeds configured max payload size")
	}

	headerType := r.Header.Get("X-Content-Type")
	if headerType == "" {
		headerType = r.Header.Get("Content-Type")
	}

	if mediaType, payload, ok := parseDataURI(body); ok {
		decoded, decodeErr := base64.StdEncoding.DecodeString(payload)
		if decodeErr != nil {
			return nil, "", corerr.Wrap(corerr.InvalidContent, "decode base64 data uri", decodeErr)
		}
		if headerType == "" {
			headerType = mediaType
		}
		return decoded, headerType, nil
	}

	if headerType == "" {
		headerType = http.DetectContentType(body)
	}
	return body, headerType, nil
}

// parseDataURI splits a `data:<mediatype>;base64,<payload>` body. Returns
// ok=false for anything else, including data URIs without ;base64,.
func parseDataURI(body []byte) (mediaType, payload string, ok bool) {
	const prefix = "data:"
	s := string(body)
	if !strings.HasPrefix(s, prefix) {
		return "", "", false
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return "", "", false
	}
	header := s[len(prefix):comma]
	if !strings.HasSuffix(header, ";base64") {
		return "", "", false
	}
	mediaType = strings.TrimSuffix(header, ";base64")
	return mediaType, s[comma+1:], true
}
