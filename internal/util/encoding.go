package util

import (
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// b64url is URL-safe base64 without padding, the encoding used for token
// strings, derived secrets and client-state fingerprints. No output byte
// can be a NUL, newline or padding character.
var b64url = base64.URLEncoding.WithPadding(base64.NoPadding)

func Normalize(s string) string {
	return norm.NFKC.String(s)
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func B64Encode(b []byte) string {
	return b64url.EncodeToString(b)
}

func B64Decode(s string) ([]byte, error) {
	return b64url.DecodeString(s)
}
