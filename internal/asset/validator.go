// Package asset validates caller-supplied reference images. Validation never
// returns an error value; rejections come back as a typed Result so the
// caller can continue without the asset.
package asset

import (
	"encoding/base64"
	"fmt"
	"strings"

	internalerrors "github.com/jimeng-relay/storyvideo/internal/errors"
)

// MaxBytes is the decoded size limit for one reference image.
const MaxBytes = 20 << 20

type Reason string

const (
	ReasonMalformed         Reason = "MalformedAsset"
	ReasonUnsupportedFormat Reason = "UnsupportedFormat"
	ReasonTooLarge          Reason = "AssetTooLarge"
	ReasonEmpty             Reason = "EmptyAsset"
)

var supportedSubtypes = map[string]string{
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

type Asset struct {
	Bytes    []byte
	MIMEType string
}

type Result struct {
	Asset  *Asset
	Reason Reason
	Detail string
}

func (r Result) OK() bool {
	return r.Asset != nil && r.Reason == ""
}

// Err converts a rejection into an ASSET_ERROR for logging. It is nil for a
// valid asset.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return internalerrors.New(internalerrors.ErrAsset, string(r.Reason), fmt.Errorf("%s", r.Detail))
}

func reject(reason Reason, format string, args ...any) Result {
	return Result{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks, in order: data-URI shape, mime type, estimated decoded
// size, and non-empty payload. Accepts both `data:<mime>;base64,<payload>`
// and the bare `<mime>;base64,<payload>` form.
func Validate(raw string) Result {
	raw = strings.TrimSpace(raw)
	head, payload, ok := strings.Cut(raw, ";base64,")
	if !ok {
		return reject(ReasonMalformed, "missing ;base64, separator")
	}
	mime := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(head, "data:")))
	typ, subtype, ok := strings.Cut(mime, "/")
	if !ok || typ == "" || subtype == "" || strings.ContainsAny(mime, " ,;") {
		return reject(ReasonMalformed, "invalid mime prefix %q", head)
	}

	normalized, supported := supportedSubtypes[subtype]
	if typ != "image" || !supported {
		return reject(ReasonUnsupportedFormat, "unsupported mime type %q", mime)
	}

	payload = stripBase64Whitespace(payload)
	if estimated := len(payload) * 3 / 4; estimated > MaxBytes {
		return reject(ReasonTooLarge, "estimated %d bytes exceeds %d", estimated, MaxBytes)
	}

	if payload == "" {
		return reject(ReasonEmpty, "payload is empty")
	}

	b, err := decode(payload)
	if err != nil {
		return reject(ReasonMalformed, "decode base64: %v", err)
	}
	if len(b) == 0 {
		return reject(ReasonEmpty, "payload decodes to zero bytes")
	}

	return Result{Asset: &Asset{Bytes: b, MIMEType: normalized}}
}

// EncodeDataURI is the inverse of Validate for callers that hold raw bytes.
func EncodeDataURI(mimeType string, b []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(b)
}

func decode(payload string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return b, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(payload); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

func stripBase64Whitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		default:
			return r
		}
	}, s)
}
