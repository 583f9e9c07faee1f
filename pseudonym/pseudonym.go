// Package pseudonym derives deterministic, keyed pseudonyms for account
// and device identifiers. Pseudonyms are safe to emit in logs and metrics:
// the same identifier always maps to the same pseudonym, but the raw
// identifier cannot be recovered without the server-side key.
package pseudonym

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/syncgate/tokenserver/internal/util"
)

// TruncatedLen is the length in hex characters of the shortened pseudonyms
// used as log fields (128 bits). Truncation is applied by callers at point
// of use; Pseudonymize always returns the full digest.
const TruncatedLen = 32

// ErrInvalidKey indicates the hash key is structurally unusable. This is a
// configuration error: it must be caught at startup, not handled per request.
var ErrInvalidKey = errors.New("pseudonym: invalid hash key")

// Pseudonymize computes an HMAC-SHA256 digest over message with key and
// returns the full 64-character lowercase hex encoding. Deterministic.
func Pseudonymize(message, key []byte) (string, error) {
	if len(key) == 0 {
		return "", ErrInvalidKey
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return util.HexEncode(mac.Sum(nil)), nil
}

// DevicePseudonym derives a device-scoped pseudonym from an account
// pseudonym prefix and a device label. The result is truncated to
// TruncatedLen hex characters: device pseudonyms are correlation handles,
// not collision-resistant identifiers.
func DevicePseudonym(accountPrefix, deviceLabel string, key []byte) (string, error) {
	full, err := Pseudonymize([]byte(accountPrefix+deviceLabel), key)
	if err != nil {
		return "", err
	}
	return full[:TruncatedLen], nil
}
