package signing

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage/memory"
	"stellar-copy-engine/internal/strkey"
)

func TestLocalSignerRoundTrip(t *testing.T) {
	s := NewLocalSigner()
	var seed [32]byte
	seed[0] = 7
	pub := s.AddSeed("owner1", seed)

	var hash [32]byte
	hash[31] = 1
	sig, err := s.Sign(context.Background(), "owner1", hash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ed25519.Verify(pub[:], hash[:], sig) {
		t.Fatal("signature does not verify")
	}

	if err := s.EnsureSession(context.Background(), "owner1"); err != nil {
		t.Errorf("EnsureSession: %v", err)
	}
	if err := s.EnsureSession(context.Background(), "ghost"); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("err = %v, want ErrSessionExpired", err)
	}
}

// remoteFixture wires a fake custody service that signs payloads with a
// real wallet key, so local verification exercises the honest path.
type remoteFixture struct {
	signer     *RemoteSigner
	walletPriv ed25519.PrivateKey
	sessionKey *ecdsa.PrivateKey
	srv        *httptest.Server
	lastStamp  string
	lastBody   []byte
}

func newRemoteFixture(t *testing.T, tamper bool) *remoteFixture {
	t.Helper()
	f := &remoteFixture{}

	var err error
	_, f.walletPriv, err = ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	f.sessionKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.lastStamp = r.Header.Get("X-Stamp")
		if r.Header.Get("X-Idempotency-Key") == "" {
			t.Error("missing idempotency key")
		}
		var req struct {
			Parameters struct {
				Payload string `json:"payload"`
			} `json:"parameters"`
		}
		buf, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatal(err)
		}
		f.lastBody = buf
		if err := json.Unmarshal(buf, &req); err != nil {
			t.Fatalf("parse request: %v", err)
		}
		payload, err := hex.DecodeString(req.Parameters.Payload)
		if err != nil {
			t.Fatalf("payload not hex: %v", err)
		}
		sig := ed25519.Sign(f.walletPriv, payload)
		if tamper {
			sig[0] ^= 0xFF
		}
		fmt.Fprintf(w, `{"activity":{"result":{"signRawPayloadResult":{"r":%q,"s":%q}}}}`,
			hex.EncodeToString(sig[:32]), hex.EncodeToString(sig[32:]))
	}))
	t.Cleanup(f.srv.Close)

	users := memory.NewUserStore()
	sessions := memory.NewSessionStore()
	var walletPub [32]byte
	copy(walletPub[:], f.walletPriv.Public().(ed25519.PublicKey))
	if err := users.Upsert(context.Background(), &domain.User{
		OwnerID:   "owner1",
		PublicKey: strkey.EncodeAccountID(walletPub),
	}); err != nil {
		t.Fatal(err)
	}
	if err := sessions.Save(context.Background(), &domain.SigningSession{
		OwnerID:        "owner1",
		OrganizationID: "org-123",
		PublicKeyHex:   hex.EncodeToString(compressP256(&f.sessionKey.PublicKey)),
		PrivateKeyHex:  hex.EncodeToString(f.sessionKey.D.FillBytes(make([]byte, 32))),
		ExpiresAt:      time.Now().Add(time.Hour).UnixMilli(),
	}); err != nil {
		t.Fatal(err)
	}

	f.signer = NewRemoteSigner(f.srv.URL, sessions, users, nil)
	return f
}

func TestRemoteSignerVerifiesSignature(t *testing.T) {
	f := newRemoteFixture(t, false)

	var hash [32]byte
	hash[0] = 0xAB
	sig, err := f.signer.Sign(context.Background(), "owner1", hash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if len(sig) != 64 {
		t.Fatalf("signature length = %d", len(sig))
	}
	if !ed25519.Verify(f.walletPriv.Public().(ed25519.PublicKey), hash[:], sig) {
		t.Fatal("returned signature does not verify")
	}
}

func TestRemoteSignerRejectsTamperedSignature(t *testing.T) {
	f := newRemoteFixture(t, true)

	var hash [32]byte
	if _, err := f.signer.Sign(context.Background(), "owner1", hash); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestRemoteSignerStampVerifiable(t *testing.T) {
	f := newRemoteFixture(t, false)

	var hash [32]byte
	if _, err := f.signer.Sign(context.Background(), "owner1", hash); err != nil {
		t.Fatal(err)
	}

	raw, err := base64.RawURLEncoding.DecodeString(f.lastStamp)
	if err != nil {
		t.Fatalf("stamp not base64url: %v", err)
	}
	var stamp struct {
		PublicKey string `json:"publicKey"`
		Scheme    string `json:"scheme"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(raw, &stamp); err != nil {
		t.Fatalf("stamp not json: %v", err)
	}
	if stamp.Scheme != "SIGNATURE_SCHEME_TK_API_P256" {
		t.Errorf("scheme = %q", stamp.Scheme)
	}
	if stamp.PublicKey != hex.EncodeToString(compressP256(&f.sessionKey.PublicKey)) {
		t.Error("stamp public key is not the session key")
	}
	sig, err := hex.DecodeString(stamp.Signature)
	if err != nil {
		t.Fatal(err)
	}
	digest := sha256.Sum256(f.lastBody)
	if !ecdsa.VerifyASN1(&f.sessionKey.PublicKey, digest[:], sig) {
		t.Fatal("stamp signature does not verify over the body")
	}
}

func TestRemoteSignerFailsClosedOnExpiry(t *testing.T) {
	users := memory.NewUserStore()
	sessions := memory.NewSessionStore()
	if err := sessions.Save(context.Background(), &domain.SigningSession{
		OwnerID:       "owner1",
		PrivateKeyHex: "ff",
		ExpiresAt:     time.Now().Add(-time.Minute).UnixMilli(),
	}); err != nil {
		t.Fatal(err)
	}

	s := NewRemoteSigner("http://unreachable.invalid", sessions, users, nil)
	if err := s.EnsureSession(context.Background(), "owner1"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	var hash [32]byte
	if _, err := s.Sign(context.Background(), "owner1", hash); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
}

func TestRemoteSignerUnknownOwner(t *testing.T) {
	s := NewRemoteSigner("http://unreachable.invalid", memory.NewSessionStore(), memory.NewUserStore(), nil)
	if err := s.EnsureSession(context.Background(), "ghost"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
}

// sealBundle implements the sender side of the seal for the round trip
// test, mirroring RFC 9180 base mode with the suite the engine opens.
func sealBundle(t *testing.T, recipientPub *ecdh.PublicKey, plaintext []byte) string {
	t.Helper()
	sender, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	dh, err := sender.ECDH(recipientPub)
	if err != nil {
		t.Fatal(err)
	}
	enc := sender.PublicKey().Bytes()

	kemSuite := kemSuiteID()
	kemContext := append(append([]byte{}, enc...), recipientPub.Bytes()...)
	eaePRK := labeledExtract(kemSuite, nil, "eae_prk", dh)
	sharedSecret, err := labeledExpand(kemSuite, eaePRK, "shared_secret", kemContext, 32)
	if err != nil {
		t.Fatal(err)
	}

	suite := hpkeSuiteID()
	pskIDHash := labeledExtract(suite, nil, "psk_id_hash", nil)
	infoHash := labeledExtract(suite, nil, "info_hash", []byte(sealInfo))
	keyContext := append([]byte{0x00}, pskIDHash...)
	keyContext = append(keyContext, infoHash...)
	secret := labeledExtract(suite, sharedSecret, "secret", nil)
	key, err := labeledExpand(suite, secret, "key", keyContext, 16)
	if err != nil {
		t.Fatal(err)
	}
	baseNonce, err := labeledExpand(suite, secret, "base_nonce", keyContext, 12)
	if err != nil {
		t.Fatal(err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatal(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatal(err)
	}
	ct := gcm.Seal(nil, baseNonce, plaintext, nil)

	bundle, err := json.Marshal(sealedBundle{
		EncapsulatedPublic: base64.StdEncoding.EncodeToString(enc),
		Ciphertext:         base64.StdEncoding.EncodeToString(ct),
	})
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(bundle)
}

func TestOpenSealedBundleRoundTrip(t *testing.T) {
	recipient, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	creds, err := json.Marshal(sessionCredentials{
		PublicKey:  "02aabb",
		PrivateKey: "ccdd",
	})
	if err != nil {
		t.Fatal(err)
	}

	bundle := sealBundle(t, recipient.PublicKey(), creds)
	pubHex, privHex, err := OpenSealedBundle(recipient, bundle)
	if err != nil {
		t.Fatalf("OpenSealedBundle: %v", err)
	}
	if pubHex != "02aabb" || privHex != "ccdd" {
		t.Fatalf("recovered %q/%q", pubHex, privHex)
	}
}

func TestOpenSealedBundleWrongRecipient(t *testing.T) {
	recipient, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	other, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	creds, _ := json.Marshal(sessionCredentials{PublicKey: "aa", PrivateKey: "bb"})

	bundle := sealBundle(t, recipient.PublicKey(), creds)
	if _, _, err := OpenSealedBundle(other, bundle); err == nil {
		t.Fatal("seal opened with the wrong key")
	}
}

func TestParseP256ScalarMatchesGeneratedKey(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := parseP256Scalar(hex.EncodeToString(key.D.FillBytes(make([]byte, 32))))
	if err != nil {
		t.Fatalf("parseP256Scalar: %v", err)
	}
	if parsed.X.Cmp(key.X) != 0 || parsed.Y.Cmp(key.Y) != 0 {
		t.Fatal("derived public key mismatch")
	}
	if _, err := parseP256Scalar("00"); err == nil {
		t.Fatal("zero scalar accepted")
	}
}

func TestCanonicalBodyKeyOrder(t *testing.T) {
	var hash [32]byte
	body, err := canonicalBody("org", "GWALLET", hash, 1700000000000)
	if err != nil {
		t.Fatal(err)
	}
	wantOrder := []string{`"organizationId"`, `"parameters"`, `"timestampMs"`, `"type"`}
	last := -1
	for _, key := range wantOrder {
		idx := bytes.Index(body, []byte(key))
		if idx < 0 {
			t.Fatalf("key %s missing in %s", key, body)
		}
		if idx < last {
			t.Fatalf("key %s out of order in %s", key, body)
		}
		last = idx
	}
	if bytes.Contains(body, []byte(" ")) {
		t.Fatalf("body not compact: %s", body)
	}
}
