package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/syncgate/tokenserver/internal/util"
	"github.com/syncgate/tokenserver/issuer"
)

// ErrInvalidCredential indicates an inbound credential that fails decoding
// or signature verification.
var ErrInvalidCredential = errors.New("api: invalid credential")

// Claims is the typed record an upstream authenticator asserts about the
// caller: who they are and the generation number of their key material.
type Claims struct {
	AccountID  string `json:"account_id"`
	Generation uint64 `json:"generation"`
}

// Verifier validates the bearer credential on an inbound request and
// returns the claims it asserts.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Claims, error)
}

// HMACVerifier validates service-internal bearer credentials of the form
// base64url(claimsJSON) "." base64url(HMAC-SHA256 signature), keyed with
// an auth secret shared with the upstream authenticator. The auth secret
// is distinct from the token master secret.
type HMACVerifier struct {
	secret []byte
}

var _ Verifier = (*HMACVerifier)(nil)

// NewHMACVerifier creates a verifier over the given auth secret.
func NewHMACVerifier(secret []byte) (*HMACVerifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("auth secret is empty")
	}
	return &HMACVerifier{secret: util.CopyBytes(secret)}, nil
}

func (v *HMACVerifier) Verify(_ context.Context, credential string) (*Claims, error) {
	payloadB64, sigB64, found := strings.Cut(credential, ".")
	if !found {
		return nil, ErrInvalidCredential
	}

	payload, err := util.B64Decode(payloadB64)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	sig, err := util.B64Decode(sigB64)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrInvalidCredential
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidCredential
	}
	if claims.AccountID == "" {
		return nil, ErrInvalidCredential
	}
	return &claims, nil
}

// SignCredential mints a credential the HMACVerifier accepts. Used by the
// upstream authenticator and by tests.
func SignCredential(claims Claims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("auth secret is empty")
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encoding claims: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return util.B64Encode(payload) + "." + util.B64Encode(mac.Sum(nil)), nil
}

// extractTokenRequest is the request-extraction layer: it validates the
// Authorization header, bounds the requested duration and decodes the
// optional client-state fingerprint into a typed issuance request. This is
// the trust boundary for caller-supplied durations; the issuer does not
// clamp them again.
func (a *API) extractTokenRequest(r *http.Request) (*issuer.TokenRequest, error) {
	authz := r.Header.Get("Authorization")
	scheme, credential, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || credential == "" {
		return nil, ErrInvalidCredential
	}

	claims, err := a.verifier.Verify(r.Context(), credential)
	if err != nil {
		// Collapse verifier failures to the sentinel so no detail from the
		// credential ever reaches a response body or log line.
		return nil, ErrInvalidCredential
	}

	duration := uint64(defaultTokenDuration)
	if raw := r.URL.Query().Get("duration"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			return nil, fmt.Errorf("invalid duration %q", raw)
		}
		duration = parsed
	}
	if duration > a.maxDuration {
		duration = a.maxDuration
	}

	var clientState []byte
	if raw := r.Header.Get("X-Client-State"); raw != "" {
		clientState, err = util.HexDecode(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid client state encoding")
		}
	}

	return &issuer.TokenRequest{
		AccountID:   claims.AccountID,
		Duration:    duration,
		Generation:  claims.Generation,
		ClientState: clientState,
	}, nil
}
