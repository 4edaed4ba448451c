package signing

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
)

// LocalSigner signs with in-process ed25519 seeds. Test and development
// mode only; production keys never leave the custody service.
type LocalSigner struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PrivateKey
}

// NewLocalSigner creates an empty local signer.
func NewLocalSigner() *LocalSigner {
	return &LocalSigner{keys: make(map[string]ed25519.PrivateKey)}
}

var _ Signer = (*LocalSigner)(nil)

// AddSeed registers an owner's 32-byte ed25519 seed and returns the wallet
// public key.
func (s *LocalSigner) AddSeed(ownerID string, seed [32]byte) [32]byte {
	priv := ed25519.NewKeyFromSeed(seed[:])
	s.mu.Lock()
	s.keys[ownerID] = priv
	s.mu.Unlock()
	var pub [32]byte
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return pub
}

// Sign signs the hash with the owner's registered seed.
func (s *LocalSigner) Sign(_ context.Context, ownerID string, txHash [32]byte) ([]byte, error) {
	s.mu.RLock()
	priv, ok := s.keys[ownerID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("local signer: no key for owner %s: %w", ownerID, ErrSessionExpired)
	}
	return ed25519.Sign(priv, txHash[:]), nil
}

// EnsureSession reports whether a key is registered for the owner.
func (s *LocalSigner) EnsureSession(_ context.Context, ownerID string) error {
	s.mu.RLock()
	_, ok := s.keys[ownerID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionExpired
	}
	return nil
}
