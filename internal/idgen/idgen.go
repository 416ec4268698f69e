// Package idgen generates request and correlation identifiers.
package idgen

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// RequestPrefix marks identifiers minted for inbound requests.
	RequestPrefix = "req_"

	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	length   = 16
	maxLen   = 128
)

var fallback atomic.Uint64

// RequestID returns a new request identifier. If the random source fails
// it falls back to a time-based identifier so callers never see an error.
func RequestID() string {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		n := fallback.Add(1)
		return RequestPrefix + strconv.FormatInt(time.Now().UnixNano(), 36) + strconv.FormatUint(n, 36)
	}
	return RequestPrefix + id
}

// Accept reports whether a caller-supplied identifier can be reused as
// the request ID: non-empty, at most 128 bytes, and limited to
// characters that are safe in logs and headers.
func Accept(id string) bool {
	if id == "" || len(id) > maxLen {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '-' || r == '_' || r == '.' || r == ':':
			return false
		}
		return true
	}) < 0
}
