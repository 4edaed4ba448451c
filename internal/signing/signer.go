// Package signing implements the remote custody protocol: canonical
// request stamping with a session keypair, sealed session-key recovery,
// and mandatory local verification of returned signatures.
package signing

import (
	"context"
	"errors"
)

var (
	// ErrSessionExpired means the owner's custody session has lapsed; the
	// engine fails closed and the owner must re-authenticate.
	ErrSessionExpired = errors.New("signing: session expired")

	// ErrBadSignature means the custody service returned a signature that
	// does not verify against the wallet key and transaction hash. Fatal,
	// never retried.
	ErrBadSignature = errors.New("signing: signature failed local verification")
)

// Signer is the capability the engine depends on: produce a wallet
// signature for a transaction hash on behalf of an owner.
type Signer interface {
	// Sign returns the 64-byte ed25519 signature over txHash.
	Sign(ctx context.Context, ownerID string, txHash [32]byte) ([]byte, error)

	// EnsureSession verifies the owner has a usable session, recovering
	// sealed credentials if needed. Returns ErrSessionExpired when not.
	EnsureSession(ctx context.Context, ownerID string) error
}
