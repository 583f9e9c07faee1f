// Package token implements the credential minting core: the authenticated
// transform that turns a canonical plaintext plus a long-lived shared secret
// into an opaque bearer token and a derived session secret.
//
// The construction is sign-then-encode: the canonical JSON payload is
// authenticated with HMAC-SHA256 under the shared secret, and the token is
// the URL-safe base64 encoding of payload||signature. The session secret is
// derived from the token itself via HKDF-SHA256 keyed with the same shared
// secret, so a storage node holding the secret can re-derive the identical
// session key from the token alone, without any shared state with the
// minting process.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syncgate/tokenserver/internal/util"
)

// derivationInfo is the HKDF info prefix for session secret derivation.
// Changing it invalidates every outstanding derived secret; treat it as
// part of the wire contract with storage nodes.
const derivationInfo = "syncgate.dev/tokenserver/v1/derive/"

const sigLen = sha256.Size

var (
	// ErrInvalidSecret indicates missing or empty shared-secret material.
	// This is a configuration error surfaced at startup, never per request.
	ErrInvalidSecret = errors.New("token: invalid shared secret")
	// ErrInvalidToken indicates a token that fails decoding or signature
	// verification.
	ErrInvalidToken = errors.New("token: invalid token")
)

// Plaintext is the canonical, ordered set of fields a token protects.
// Field declaration order fixes the canonical serialization: encoding/json
// emits struct fields in declaration order, so the signed byte form is
// deterministic. Do not reorder fields.
type Plaintext struct {
	// Node is the storage node endpoint URL the token is scoped to.
	Node string `json:"node"`
	// KeyID identifies the key-rotation epoch and client state the token
	// was minted under: a 13-digit zero-padded counter, a hyphen, then the
	// base64url (no padding) client-state fingerprint.
	KeyID string `json:"key_id"`
	// AccountID is the raw provider-issued account identifier. It appears
	// only inside the authenticated token, never in logs or responses.
	AccountID string `json:"account_id"`
	// HashedDeviceID is the truncated device pseudonym.
	HashedDeviceID string `json:"hashed_device_id"`
	// HashedAccountID is the truncated account pseudonym.
	HashedAccountID string `json:"hashed_account_id"`
	// Expires is the absolute expiry in whole epoch seconds. It is the sole
	// revocation mechanism: there is no server-side token registry.
	Expires uint64 `json:"expires"`
	// UID is the node-scoped numeric user id.
	UID int64 `json:"uid"`
}

// Mint produces the opaque token string and the derived session secret for
// the given plaintext under the shared secret. Deterministic: identical
// inputs always produce identical outputs. The only failure mode is
// structurally invalid secret material.
func Mint(pt Plaintext, secret []byte) (string, string, error) {
	if len(secret) == 0 {
		return "", "", ErrInvalidSecret
	}

	payload, err := json.Marshal(pt)
	if err != nil {
		return "", "", fmt.Errorf("encoding token plaintext: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	signed := mac.Sum(payload)

	tok := util.B64Encode(signed)

	derived, err := DeriveSecret(tok, secret)
	if err != nil {
		return "", "", err
	}
	return tok, derived, nil
}

// DeriveSecret re-derives the session secret for a minted token. The
// derivation is keyed with the shared secret and bound to the full token
// string, so it is a deterministic function of (secret, token) that never
// exposes the shared secret itself.
func DeriveSecret(tok string, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", ErrInvalidSecret
	}
	key, err := util.HKDF(secret, nil, []byte(derivationInfo+tok))
	if err != nil {
		return "", fmt.Errorf("deriving session secret: %w", err)
	}
	return util.B64Encode(key), nil
}

// Verify checks a token's signature under the shared secret and returns the
// embedded plaintext. Any bit-level modification of the token fails with
// ErrInvalidToken. Verify does not enforce expiry; Expires is a plaintext
// field the storage node checks against its own clock.
func Verify(tok string, secret []byte) (*Plaintext, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidSecret
	}

	raw, err := util.B64Decode(tok)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if len(raw) <= sigLen {
		return nil, ErrInvalidToken
	}

	payload, sig := raw[:len(raw)-sigLen], raw[len(raw)-sigLen:]

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrInvalidToken
	}

	var pt Plaintext
	if err := json.Unmarshal(payload, &pt); err != nil {
		return nil, ErrInvalidToken
	}
	return &pt, nil
}
