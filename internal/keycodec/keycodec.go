// Package keycodec converts object keys to and from the base64 tokens used in
// URL path segments.
//
// Encode always produces the unpadded URL-safe alphabet, so a token never
// contains '/', '+' or '='. Decode also accepts the standard alphabet with or
// without padding, which is what most clients send.
package keycodec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidToken is wrapped by every Decode failure.
var ErrInvalidToken = errors.New("invalid base64 token")

// Encode turns an object key into a path-segment safe token.
func Encode(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Decode reverses Encode.
func Decode(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	t := strings.TrimRight(token, "=")
	t = strings.NewReplacer("+", "-", "/", "_").Replace(t)
	b, err := base64.RawURLEncoding.DecodeString(t)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalidToken, token, err)
	}
	return string(b), nil
}

// IsDirectory reports whether a decoded key denotes a directory marker.
func IsDirectory(key string) bool { return strings.HasSuffix(key, "/") }

// FileName returns the last path segment of a decoded key.
func FileName(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
