package signing

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/storage"
	"stellar-copy-engine/internal/strkey"
)

const (
	activityCreateSession = "ACTIVITY_TYPE_CREATE_READ_WRITE_SESSION_V2"

	signPath    = "/public/v1/submit/sign_raw_payload"
	sessionPath = "/public/v1/submit/create_read_write_session"

	// DefaultTimeout bounds one custody round trip.
	DefaultTimeout = 30 * time.Second
)

// RemoteSigner signs transaction hashes through the remote custody service.
// Per-owner session keys stamp signing requests; the service's own API key
// stamps session recovery.
type RemoteSigner struct {
	endpoint string
	client   *http.Client
	sessions storage.SessionStore
	users    storage.UserStore
	apiKey   *ecdsa.PrivateKey
	log      zerolog.Logger
	now      func() time.Time
}

// RemoteOption configures RemoteSigner.
type RemoteOption func(*RemoteSigner)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(s *RemoteSigner) { s.client = hc }
}

// WithLogger sets the signer logger.
func WithLogger(log zerolog.Logger) RemoteOption {
	return func(s *RemoteSigner) { s.log = log }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RemoteOption {
	return func(s *RemoteSigner) { s.now = now }
}

// NewRemoteSigner creates a custody client. apiKey stamps session-recovery
// requests and may be nil when recovery is handled elsewhere.
func NewRemoteSigner(endpoint string, sessions storage.SessionStore, users storage.UserStore, apiKey *ecdsa.PrivateKey, opts ...RemoteOption) *RemoteSigner {
	s := &RemoteSigner{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
		sessions: sessions,
		users:    users,
		apiKey:   apiKey,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Signer = (*RemoteSigner)(nil)

// Sign builds the canonical activity, stamps it with the owner's session
// key, submits it and verifies the returned signature against the owner's
// wallet key before accepting it.
func (s *RemoteSigner) Sign(ctx context.Context, ownerID string, txHash [32]byte) ([]byte, error) {
	user, err := s.users.Get(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", ownerID, err)
	}
	session, err := s.usableSession(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	sessionKey, err := parseP256Scalar(session.PrivateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse session key: %w", err)
	}

	body, err := canonicalBody(session.OrganizationID, user.PublicKey, txHash, s.now().UnixMilli())
	if err != nil {
		return nil, err
	}
	stamp, err := stampHeader(sessionKey, body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Activity struct {
			Result struct {
				SignRawPayloadResult struct {
					R string `json:"r"`
					S string `json:"s"`
				} `json:"signRawPayloadResult"`
			} `json:"result"`
		} `json:"activity"`
	}
	if err := s.post(ctx, signPath, body, stamp, &resp); err != nil {
		return nil, err
	}

	sig, err := assembleSignature(resp.Activity.Result.SignRawPayloadResult.R, resp.Activity.Result.SignRawPayloadResult.S)
	if err != nil {
		return nil, err
	}

	walletPub, err := strkey.DecodeAccountID(user.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode wallet key: %w", err)
	}
	if !ed25519.Verify(walletPub[:], txHash[:], sig) {
		s.log.Error().Str("owner", ownerID).Msg("remote signature rejected by local verification")
		return nil, ErrBadSignature
	}
	return sig, nil
}

// EnsureSession checks the owner has a live session, opening a sealed one
// in place when only its encrypted form is stored. An expired session is
// never renewed here.
func (s *RemoteSigner) EnsureSession(ctx context.Context, ownerID string) error {
	_, err := s.usableSession(ctx, ownerID)
	return err
}

func (s *RemoteSigner) usableSession(ctx context.Context, ownerID string) (*domain.SigningSession, error) {
	session, err := s.sessions.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("load session %s: %w", ownerID, err)
	}
	if session.Expired(s.now().UnixMilli()) {
		return nil, ErrSessionExpired
	}
	if session.PrivateKeyHex != "" {
		return session, nil
	}
	if session.SealedBundle == "" || s.apiKey == nil {
		return nil, ErrSessionExpired
	}
	if err := s.recoverSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// recoverSession requests a fresh sealed credential bundle keyed to a new
// ephemeral key, opens it locally and caches the recovered keypair.
func (s *RemoteSigner) recoverSession(ctx context.Context, session *domain.SigningSession) error {
	ephemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate ephemeral key: %w", err)
	}

	body := map[string]interface{}{
		"organizationId": session.OrganizationID,
		"parameters": map[string]interface{}{
			"targetPublicKey": hex.EncodeToString(ephemeral.PublicKey().Bytes()),
		},
		"timestampMs": fmt.Sprintf("%d", s.now().UnixMilli()),
		"type":        activityCreateSession,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal session request: %w", err)
	}
	stamp, err := stampHeader(s.apiKey, raw)
	if err != nil {
		return err
	}

	var resp struct {
		Activity struct {
			Result struct {
				CreateReadWriteSessionResultV2 struct {
					CredentialBundle string `json:"credentialBundle"`
				} `json:"createReadWriteSessionResultV2"`
			} `json:"result"`
		} `json:"activity"`
	}
	if err := s.post(ctx, sessionPath, raw, stamp, &resp); err != nil {
		return err
	}

	pubHex, privHex, err := OpenSealedBundle(ephemeral, resp.Activity.Result.CreateReadWriteSessionResultV2.CredentialBundle)
	if err != nil {
		return fmt.Errorf("open session bundle: %w", err)
	}
	session.PublicKeyHex = pubHex
	session.PrivateKeyHex = privHex
	if err := s.sessions.Save(ctx, session); err != nil {
		return fmt.Errorf("cache recovered session: %w", err)
	}
	return nil
}

func (s *RemoteSigner) post(ctx context.Context, path string, body []byte, stamp string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Stamp", stamp)
	req.Header.Set("X-Idempotency-Key", uuid.NewString())
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("custody %s: %w", path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("custody %s: status %d: %s", path, resp.StatusCode, payload)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// assembleSignature joins the two 32-byte hex scalars the custody service
// returns into a raw 64-byte ed25519 signature.
func assembleSignature(rHex, sHex string) ([]byte, error) {
	r, err := hex.DecodeString(rHex)
	if err != nil {
		return nil, fmt.Errorf("decode r: %w", err)
	}
	sc, err := hex.DecodeString(sHex)
	if err != nil {
		return nil, fmt.Errorf("decode s: %w", err)
	}
	if len(r) != 32 || len(sc) != 32 {
		return nil, fmt.Errorf("scalar lengths %d/%d, want 32/32", len(r), len(sc))
	}
	return append(r, sc...), nil
}

// ParseAPIKey builds the stamping key from its configured hex scalar.
func ParseAPIKey(privHex string) (*ecdsa.PrivateKey, error) {
	key, err := parseP256Scalar(privHex)
	if err != nil {
		return nil, fmt.Errorf("signing: parse api key: %w", err)
	}
	return key, nil
}

// parseP256Scalar builds an ECDSA private key from its hex scalar.
func parseP256Scalar(privHex string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(privHex)
	if err != nil {
		return nil, fmt.Errorf("decode scalar: %w", err)
	}
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, fmt.Errorf("scalar out of range")
	}
	priv := &ecdsa.PrivateKey{D: d}
	priv.Curve = curve
	priv.X, priv.Y = curve.ScalarBaseMult(d.Bytes())
	return priv, nil
}
