package relaypager

import (
	"encoding/base64"
	"errors"
	"strings"
)

// Codec turns record identifiers into opaque cursor tokens and back. A token
// produced by Encode must be accepted by Decode of the same codec.
type Codec interface {
	Encode(id string) string
	Decode(token string) (string, error)
}

var (
	// Base64URLCodec is the default codec: unpadded URL-safe base64 of the
	// identifier's string form.
	Base64URLCodec Codec = base64Codec{encoding: base64.RawURLEncoding}
	// PaddedBase64URLCodec emits padded tokens. Both codecs decode either form.
	PaddedBase64URLCodec Codec = base64Codec{encoding: base64.URLEncoding}
)

type base64Codec struct {
	encoding *base64.Encoding
}

// Encode - implements Codec.
func (c base64Codec) Encode(id string) string {
	return c.encoding.EncodeToString([]byte(id))
}

// Decode - implements Codec. Padding is optional on input.
func (c base64Codec) Decode(token string) (string, error) {
	if strings.ContainsAny(token, "+/") {
		return "", &InvalidCursorError{Cursor: token, Err: errors.New("token is not url-safe base64")}
	}

	encoding := base64.RawURLEncoding
	if strings.HasSuffix(token, "=") {
		encoding = base64.URLEncoding
	}

	data, err := encoding.DecodeString(token)
	if err != nil {
		return "", &InvalidCursorError{Cursor: token, Err: err}
	}

	return string(data), nil
}

// decodeCursor decodes token with codec and guarantees that any failure is
// reported as *InvalidCursorError, whatever the codec returned.
func decodeCursor(codec Codec, token string) (string, error) {
	id, err := codec.Decode(token)
	if err == nil {
		return id, nil
	}

	var invalid *InvalidCursorError
	if errors.As(err, &invalid) {
		return "", err
	}

	return "", &InvalidCursorError{Cursor: token, Err: err}
}
