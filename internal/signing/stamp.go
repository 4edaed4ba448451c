package signing

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Activity and scheme constants of the custody API.
const (
	activitySignRawPayload = "ACTIVITY_TYPE_SIGN_RAW_PAYLOAD_V2"
	payloadEncodingHex     = "PAYLOAD_ENCODING_HEXADECIMAL"
	hashFunctionNone       = "HASH_FUNCTION_NOT_APPLICABLE"
	stampScheme            = "SIGNATURE_SCHEME_TK_API_P256"
)

// canonicalBody renders the key-sorted compact JSON request body the stamp
// covers; maps marshal with sorted keys, which the custody side requires.
// The payload names the transaction hash, never the full envelope.
func canonicalBody(organizationID, signWith string, txHash [32]byte, timestampMs int64) ([]byte, error) {
	body := map[string]interface{}{
		"organizationId": organizationID,
		"parameters": map[string]interface{}{
			"encoding":     payloadEncodingHex,
			"hashFunction": hashFunctionNone,
			"payload":      hex.EncodeToString(txHash[:]),
			"signWith":     signWith,
		},
		"timestampMs": fmt.Sprintf("%d", timestampMs),
		"type":        activitySignRawPayload,
	}
	out, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal activity body: %w", err)
	}
	return out, nil
}

// stampHeader signs the body with the session key and wraps the result into
// the base64url X-Stamp header value.
func stampHeader(sessionKey *ecdsa.PrivateKey, body []byte) (string, error) {
	digest := sha256.Sum256(body)
	sig, err := ecdsa.SignASN1(rand.Reader, sessionKey, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign stamp: %w", err)
	}
	stamp := map[string]string{
		"publicKey": hex.EncodeToString(compressP256(&sessionKey.PublicKey)),
		"scheme":    stampScheme,
		"signature": hex.EncodeToString(sig),
	}
	raw, err := json.Marshal(stamp)
	if err != nil {
		return "", fmt.Errorf("marshal stamp: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// compressP256 renders an ECDSA P-256 public key in SEC1 compressed form.
func compressP256(pub *ecdsa.PublicKey) []byte {
	out := make([]byte, 33)
	if pub.Y.Bit(0) == 1 {
		out[0] = 0x03
	} else {
		out[0] = 0x02
	}
	pub.X.FillBytes(out[1:])
	return out
}
