package issuer

import (
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
)

// ErrInvalidSecrets indicates missing or empty secret material. Surfaced
// once at construction; a running issuer never sees invalid secrets.
var ErrInvalidSecrets = errors.New("issuer: invalid secret material")

// Secrets holds the process-lifetime secret material for token minting and
// identifier pseudonymization. Both secrets live in memguard enclaves
// (encrypted at rest in memory) and are opened only for the duration of a
// single derivation. Immutable after construction; safe to share across
// concurrent requests.
type Secrets struct {
	master  *memguard.Enclave
	hashKey *memguard.Enclave
}

// NewSecrets validates and seals the master token secret and the metrics
// hash secret. The source slices are wiped by the enclave on ingestion.
func NewSecrets(master, hashKey []byte) (*Secrets, error) {
	if len(master) == 0 {
		return nil, fmt.Errorf("%w: master secret is empty", ErrInvalidSecrets)
	}
	if len(hashKey) == 0 {
		return nil, fmt.Errorf("%w: hash secret is empty", ErrInvalidSecrets)
	}
	return &Secrets{
		master:  memguard.NewEnclave(master),
		hashKey: memguard.NewEnclave(hashKey),
	}, nil
}

func (s *Secrets) openMaster() (*memguard.LockedBuffer, error) {
	buf, err := s.master.Open()
	if err != nil {
		return nil, fmt.Errorf("opening master secret enclave: %w", err)
	}
	return buf, nil
}

func (s *Secrets) openHashKey() (*memguard.LockedBuffer, error) {
	buf, err := s.hashKey.Open()
	if err != nil {
		return nil, fmt.Errorf("opening hash secret enclave: %w", err)
	}
	return buf, nil
}
