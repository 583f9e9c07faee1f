// Package issuer assembles and mints node-scoped bearer credentials. It
// builds the canonical credential plaintext from the inbound request and
// the account's node assignment, hands it to the token minter, and shapes
// the response payload.
package issuer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syncgate/tokenserver/internal/util"
	"github.com/syncgate/tokenserver/pseudonym"
	"github.com/syncgate/tokenserver/storage"
	"github.com/syncgate/tokenserver/token"
)

// deviceLabel is the placeholder device label hashed into the device
// pseudonym. No per-device identity reaches this layer; keep the
// placeholder until device plumbing exists end to end.
const deviceLabel = "none"

// ErrClientStateMismatch indicates the caller presented a client-state
// fingerprint that does not match the stored assignment.
var ErrClientStateMismatch = errors.New("issuer: client state mismatch")

// TokenRequest is the typed record the request-extraction layer produces
// from a validated inbound request. Duration must already be bounded by
// the extraction layer; the issuer does not clamp it.
type TokenRequest struct {
	AccountID  string
	Duration   uint64
	Generation uint64
	// ClientState, when non-empty, is checked against the stored
	// fingerprint before a credential is minted.
	ClientState []byte
}

// Result is the issuance response payload. Field names are fixed by the
// wire contract with clients.
type Result struct {
	ID              string `json:"id"`
	Key             string `json:"key"`
	UID             int64  `json:"uid"`
	APIEndpoint     string `json:"api_endpoint"`
	Duration        uint64 `json:"duration"`
	HashedAccountID string `json:"hashed_fxa_uid"`
}

// Issuer mints credentials from node assignments. Stateless per request;
// safe for concurrent use.
type Issuer struct {
	repo        storage.Repository
	secrets     *Secrets
	emailDomain string
	now         func() time.Time
}

// Option configures the Issuer.
type Option func(*Issuer)

// WithClock overrides the wall-clock source used for expiry computation.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// New creates an Issuer over the given assignment store and secrets.
func New(repo storage.Repository, secrets *Secrets, emailDomain string, opts ...Option) *Issuer {
	i := &Issuer{
		repo:        repo,
		secrets:     secrets,
		emailDomain: emailDomain,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// LookupKey forms the assignment-store lookup key for an account
// identifier: the NFKC-normalized identifier joined with the configured
// email domain.
func (i *Issuer) LookupKey(accountID string) string {
	return util.Normalize(accountID) + "@" + i.emailDomain
}

// IssueToken resolves the account's node assignment, builds the canonical
// credential plaintext and mints the token and derived session secret.
// A missing assignment propagates storage.ErrNotFound unmasked.
func (i *Issuer) IssueToken(ctx context.Context, req TokenRequest) (*Result, error) {
	asg, err := i.repo.GetAssignment(ctx, i.LookupKey(req.AccountID))
	if err != nil {
		return nil, err
	}

	if len(req.ClientState) > 0 && !bytes.Equal(req.ClientState, asg.ClientState) {
		return nil, ErrClientStateMismatch
	}

	hashKey, err := i.secrets.openHashKey()
	if err != nil {
		return nil, err
	}
	defer hashKey.Destroy()

	fullHash, err := pseudonym.Pseudonymize([]byte(req.AccountID), hashKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("hashing account identifier: %w", err)
	}
	hashedAccountID := fullHash[:pseudonym.TruncatedLen]

	hashedDeviceID, err := pseudonym.DevicePseudonym(hashedAccountID, deviceLabel, hashKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("hashing device identifier: %w", err)
	}

	pt := token.Plaintext{
		Node:            asg.Node,
		KeyID:           formatKeyID(keyEpoch(asg.KeysChangedAt, req.Generation), asg.ClientState),
		AccountID:       req.AccountID,
		HashedDeviceID:  hashedDeviceID,
		HashedAccountID: hashedAccountID,
		Expires:         uint64(i.now().Unix()) + req.Duration,
		UID:             asg.UID,
	}

	master, err := i.secrets.openMaster()
	if err != nil {
		return nil, err
	}
	defer master.Destroy()

	tok, derived, err := token.Mint(pt, master.Bytes())
	if err != nil {
		return nil, fmt.Errorf("minting credential: %w", err)
	}

	return &Result{
		ID:              tok,
		Key:             derived,
		UID:             asg.UID,
		APIEndpoint:     fmt.Sprintf("%s/1.5/%d", asg.Node, asg.UID),
		Duration:        req.Duration,
		HashedAccountID: hashedAccountID,
	}, nil
}

// keyEpoch resolves the key-rotation epoch the credential is minted under:
// the most recent of the stored keys-changed-at counter and the caller's
// generation number.
func keyEpoch(keysChangedAt *uint64, generation uint64) uint64 {
	if keysChangedAt != nil && *keysChangedAt > generation {
		return *keysChangedAt
	}
	return generation
}

// formatKeyID renders the composite key identifier. The epoch is
// zero-padded to 13 digits so lexicographic and numeric ordering agree;
// the client state uses base64url without padding.
func formatKeyID(epoch uint64, clientState []byte) string {
	return fmt.Sprintf("%013d-%s", epoch, util.B64Encode(clientState))
}
