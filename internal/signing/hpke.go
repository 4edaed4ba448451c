package signing

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HPKE suite used for sealed credential bundles:
// DHKEM(P-256, HKDF-SHA256), HKDF-SHA256, AES-128-GCM, base mode.
const (
	kemID  uint16 = 0x0010
	kdfID  uint16 = 0x0001
	aeadID uint16 = 0x0001

	hpkeVersionLabel = "HPKE-v1"
	// sealInfo binds the seal to its purpose.
	sealInfo = "turnkey session"
)

// sealedBundle is the outer JSON of a sealed credential delivery.
type sealedBundle struct {
	EncapsulatedPublic string `json:"encapsulatedPublic"`
	Ciphertext         string `json:"ciphertext"`
}

// sessionCredentials is the plaintext the seal protects.
type sessionCredentials struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

func kemSuiteID() []byte {
	return append([]byte("KEM"), byte(kemID>>8), byte(kemID))
}

func hpkeSuiteID() []byte {
	out := []byte("HPKE")
	out = binary.BigEndian.AppendUint16(out, kemID)
	out = binary.BigEndian.AppendUint16(out, kdfID)
	return binary.BigEndian.AppendUint16(out, aeadID)
}

func labeledExtract(suiteID, salt []byte, label string, ikm []byte) []byte {
	labeled := append([]byte(hpkeVersionLabel), suiteID...)
	labeled = append(labeled, label...)
	labeled = append(labeled, ikm...)
	return hkdf.Extract(sha256.New, labeled, salt)
}

func labeledExpand(suiteID, prk []byte, label string, info []byte, length int) ([]byte, error) {
	labeled := binary.BigEndian.AppendUint16(nil, uint16(length))
	labeled = append(labeled, hpkeVersionLabel...)
	labeled = append(labeled, suiteID...)
	labeled = append(labeled, label...)
	labeled = append(labeled, info...)
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, labeled), out); err != nil {
		return nil, fmt.Errorf("hkdf expand %s: %w", label, err)
	}
	return out, nil
}

// openSeal decapsulates the DHKEM shared secret with the recipient's
// ephemeral private key and decrypts the ciphertext.
func openSeal(recipient *ecdh.PrivateKey, encapsulated, ciphertext []byte) ([]byte, error) {
	senderPub, err := ecdh.P256().NewPublicKey(encapsulated)
	if err != nil {
		return nil, fmt.Errorf("parse encapsulated key: %w", err)
	}
	dh, err := recipient.ECDH(senderPub)
	if err != nil {
		return nil, fmt.Errorf("dh: %w", err)
	}

	kemSuite := kemSuiteID()
	kemContext := append(append([]byte{}, encapsulated...), recipient.PublicKey().Bytes()...)
	eaePRK := labeledExtract(kemSuite, nil, "eae_prk", dh)
	sharedSecret, err := labeledExpand(kemSuite, eaePRK, "shared_secret", kemContext, 32)
	if err != nil {
		return nil, err
	}

	suite := hpkeSuiteID()
	pskIDHash := labeledExtract(suite, nil, "psk_id_hash", nil)
	infoHash := labeledExtract(suite, nil, "info_hash", []byte(sealInfo))
	// Mode base = 0x00.
	keyContext := append([]byte{0x00}, pskIDHash...)
	keyContext = append(keyContext, infoHash...)
	secret := labeledExtract(suite, sharedSecret, "secret", nil)
	key, err := labeledExpand(suite, secret, "key", keyContext, 16)
	if err != nil {
		return nil, err
	}
	baseNonce, err := labeledExpand(suite, secret, "base_nonce", keyContext, 12)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	plain, err := gcm.Open(nil, baseNonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open seal: %w", err)
	}
	return plain, nil
}

// OpenSealedBundle decodes a base64 sealed credential bundle and recovers
// the session keypair it delivers, as hex scalars.
func OpenSealedBundle(recipient *ecdh.PrivateKey, bundleB64 string) (publicKeyHex, privateKeyHex string, err error) {
	raw, err := base64.StdEncoding.DecodeString(bundleB64)
	if err != nil {
		return "", "", fmt.Errorf("decode bundle: %w", err)
	}
	var bundle sealedBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return "", "", fmt.Errorf("parse bundle: %w", err)
	}
	encapsulated, err := base64.StdEncoding.DecodeString(bundle.EncapsulatedPublic)
	if err != nil {
		return "", "", fmt.Errorf("decode encapsulated key: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(bundle.Ciphertext)
	if err != nil {
		return "", "", fmt.Errorf("decode ciphertext: %w", err)
	}
	plain, err := openSeal(recipient, encapsulated, ciphertext)
	if err != nil {
		return "", "", err
	}
	var creds sessionCredentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return "", "", fmt.Errorf("parse credentials: %w", err)
	}
	if creds.PublicKey == "" || creds.PrivateKey == "" {
		return "", "", fmt.Errorf("sealed bundle missing key material")
	}
	return creds.PublicKey, creds.PrivateKey, nil
}
