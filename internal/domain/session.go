package domain

// SigningSession is one owner's custody session: the P-256 keypair that
// stamps signing requests, valid until ExpiresAt. Created by the external
// auth flow; the signing client only reads it and fails closed on expiry.
// Corresponds to signing_sessions table in PostgreSQL.
type SigningSession struct {
	OwnerID        string
	OrganizationID string // custody sub-organization holding the wallet
	// PublicKeyHex is the compressed P-256 session public key, hex.
	PublicKeyHex string
	// PrivateKeyHex is the P-256 session private scalar, hex. Empty when
	// the session is still sealed.
	PrivateKeyHex string
	// SealedBundle is the base64 recipient-encrypted credential bundle,
	// set when the session keys were delivered sealed to an ephemeral key.
	SealedBundle string
	ExpiresAt    int64 // Unix timestamp in milliseconds
}

// Expired reports whether the session has passed its expiry at nowMs.
func (s *SigningSession) Expired(nowMs int64) bool {
	return nowMs >= s.ExpiresAt
}
