package xdr

import (
	"fmt"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/strkey"
)

// CryptoKeyType discriminants for MuxedAccount.
const (
	KeyTypeEd25519      uint32 = 0
	KeyTypeMuxedEd25519 uint32 = 0x100
)

// MuxedAccount is a transaction-level account reference, optionally carrying
// a 64-bit multiplex ID.
type MuxedAccount struct {
	Type    uint32
	Ed25519 [32]byte
	ID      uint64 // when Type == KeyTypeMuxedEd25519
}

// MuxedAccountFromAddress parses a G- or M-strkey.
func MuxedAccountFromAddress(addr string) (MuxedAccount, error) {
	if len(addr) > 0 && addr[0] == 'M' {
		pub, id, err := strkey.DecodeMuxed(addr)
		if err != nil {
			return MuxedAccount{}, err
		}
		return MuxedAccount{Type: KeyTypeMuxedEd25519, Ed25519: pub, ID: id}, nil
	}
	pub, err := strkey.DecodeAccountID(addr)
	if err != nil {
		return MuxedAccount{}, err
	}
	return MuxedAccount{Type: KeyTypeEd25519, Ed25519: pub}, nil
}

// Address renders the account in strkey form, preserving the mux ID.
func (m MuxedAccount) Address() string {
	if m.Type == KeyTypeMuxedEd25519 {
		return strkey.EncodeMuxed(m.Ed25519, m.ID)
	}
	return strkey.EncodeAccountID(m.Ed25519)
}

// BaseAddress renders the underlying G-address regardless of muxing.
func (m MuxedAccount) BaseAddress() string {
	return strkey.EncodeAccountID(m.Ed25519)
}

func (m MuxedAccount) encode(e *Encoder) {
	e.PutUint32(m.Type)
	// XDR field order for med25519 is id then key.
	if m.Type == KeyTypeMuxedEd25519 {
		e.PutUint64(m.ID)
	}
	e.PutFixed(m.Ed25519[:])
}

func decodeMuxedAccount(d *Decoder) (MuxedAccount, error) {
	typ, err := d.Uint32()
	if err != nil {
		return MuxedAccount{}, err
	}
	var m MuxedAccount
	m.Type = typ
	switch typ {
	case KeyTypeEd25519:
		raw, err := d.Fixed(32)
		if err != nil {
			return MuxedAccount{}, err
		}
		copy(m.Ed25519[:], raw)
	case KeyTypeMuxedEd25519:
		if m.ID, err = d.Uint64(); err != nil {
			return MuxedAccount{}, err
		}
		raw, err := d.Fixed(32)
		if err != nil {
			return MuxedAccount{}, err
		}
		copy(m.Ed25519[:], raw)
	default:
		return MuxedAccount{}, fmt.Errorf("%w: crypto key type %d", ErrUnsupported, typ)
	}
	return m, nil
}

// Asset discriminants.
const (
	AssetTypeNative     uint32 = 0
	AssetTypeAlphanum4  uint32 = 1
	AssetTypeAlphanum12 uint32 = 2
)

// Asset is the wire form of a classic asset.
type Asset struct {
	Type   uint32
	Code   string
	Issuer [32]byte
}

// AssetFromDomain converts a domain asset to its wire form.
func AssetFromDomain(a domain.Asset) (Asset, error) {
	if a.IsNative() {
		return Asset{Type: AssetTypeNative}, nil
	}
	issuer, err := strkey.DecodeAccountID(a.Issuer)
	if err != nil {
		return Asset{}, fmt.Errorf("asset %s: %w", a, err)
	}
	switch {
	case len(a.Code) >= 1 && len(a.Code) <= 4:
		return Asset{Type: AssetTypeAlphanum4, Code: a.Code, Issuer: issuer}, nil
	case len(a.Code) <= 12:
		return Asset{Type: AssetTypeAlphanum12, Code: a.Code, Issuer: issuer}, nil
	default:
		return Asset{}, fmt.Errorf("asset code %q too long", a.Code)
	}
}

// Domain converts the wire asset back to its domain form.
func (a Asset) Domain() domain.Asset {
	if a.Type == AssetTypeNative {
		return domain.NativeAsset()
	}
	return domain.Asset{Code: a.Code, Issuer: strkey.EncodeAccountID(a.Issuer)}
}

func (a Asset) encode(e *Encoder) {
	e.PutUint32(a.Type)
	if a.Type == AssetTypeNative {
		return
	}
	n := 4
	if a.Type == AssetTypeAlphanum12 {
		n = 12
	}
	code := make([]byte, n)
	copy(code, a.Code)
	e.PutFixed(code)
	e.PutUint32(0) // AccountID key type ed25519
	e.PutFixed(a.Issuer[:])
}

func decodeAsset(d *Decoder) (Asset, error) {
	typ, err := d.Uint32()
	if err != nil {
		return Asset{}, err
	}
	a := Asset{Type: typ}
	var n int
	switch typ {
	case AssetTypeNative:
		return a, nil
	case AssetTypeAlphanum4:
		n = 4
	case AssetTypeAlphanum12:
		n = 12
	default:
		return Asset{}, fmt.Errorf("%w: asset type %d", ErrUnsupported, typ)
	}
	code, err := d.Fixed(n)
	if err != nil {
		return Asset{}, err
	}
	// Codes are zero-padded on the wire.
	end := len(code)
	for end > 0 && code[end-1] == 0 {
		end--
	}
	a.Code = string(code[:end])
	keyType, err := d.Uint32()
	if err != nil {
		return Asset{}, err
	}
	if keyType != 0 {
		return Asset{}, fmt.Errorf("%w: issuer key type %d", ErrUnsupported, keyType)
	}
	raw, err := d.Fixed(32)
	if err != nil {
		return Asset{}, err
	}
	copy(a.Issuer[:], raw)
	return a, nil
}

// Memo discriminants.
const (
	MemoNone   uint32 = 0
	MemoText   uint32 = 1
	MemoID     uint32 = 2
	MemoHash   uint32 = 3
	MemoReturn uint32 = 4
)

// Memo is the transaction memo union.
type Memo struct {
	Type uint32
	Text string
	ID   uint64
	Hash [32]byte
}

// MemoTextOf builds a text memo, truncated to the 28-byte limit.
func MemoTextOf(s string) Memo {
	if len(s) > 28 {
		s = s[:28]
	}
	return Memo{Type: MemoText, Text: s}
}

func (m Memo) encode(e *Encoder) {
	e.PutUint32(m.Type)
	switch m.Type {
	case MemoText:
		e.PutString(m.Text)
	case MemoID:
		e.PutUint64(m.ID)
	case MemoHash, MemoReturn:
		e.PutFixed(m.Hash[:])
	}
}

func decodeMemo(d *Decoder) (Memo, error) {
	typ, err := d.Uint32()
	if err != nil {
		return Memo{}, err
	}
	m := Memo{Type: typ}
	switch typ {
	case MemoNone:
	case MemoText:
		m.Text, err = d.String(28)
	case MemoID:
		m.ID, err = d.Uint64()
	case MemoHash, MemoReturn:
		var raw []byte
		raw, err = d.Fixed(32)
		if err == nil {
			copy(m.Hash[:], raw)
		}
	default:
		return Memo{}, fmt.Errorf("%w: memo type %d", ErrUnsupported, typ)
	}
	if err != nil {
		return Memo{}, err
	}
	return m, nil
}

// Precondition discriminants.
const (
	PrecondNone uint32 = 0
	PrecondTime uint32 = 1
)

// TimeBounds is the validity window of a transaction, in Unix seconds.
// MaxTime zero means no upper bound.
type TimeBounds struct {
	MinTime uint64
	MaxTime uint64
}

// Preconditions is the transaction precondition union; only the none and
// time-bounds arms are built or accepted.
type Preconditions struct {
	Type       uint32
	TimeBounds TimeBounds
}

func (p Preconditions) encode(e *Encoder) {
	e.PutUint32(p.Type)
	if p.Type == PrecondTime {
		e.PutUint64(p.TimeBounds.MinTime)
		e.PutUint64(p.TimeBounds.MaxTime)
	}
}

func decodePreconditions(d *Decoder) (Preconditions, error) {
	typ, err := d.Uint32()
	if err != nil {
		return Preconditions{}, err
	}
	p := Preconditions{Type: typ}
	switch typ {
	case PrecondNone:
	case PrecondTime:
		if p.TimeBounds.MinTime, err = d.Uint64(); err != nil {
			return Preconditions{}, err
		}
		p.TimeBounds.MaxTime, err = d.Uint64()
	default:
		return Preconditions{}, fmt.Errorf("%w: precondition type %d", ErrUnsupported, typ)
	}
	if err != nil {
		return Preconditions{}, err
	}
	return p, nil
}

// DecoratedSignature pairs a signature with the last four bytes of the
// signing key as a hint.
type DecoratedSignature struct {
	Hint      [4]byte
	Signature []byte
}

// DecorateSignature builds the hint from the signer's public key.
func DecorateSignature(pub [32]byte, sig []byte) DecoratedSignature {
	var ds DecoratedSignature
	copy(ds.Hint[:], pub[28:])
	ds.Signature = sig
	return ds
}

func (s DecoratedSignature) encode(e *Encoder) {
	e.PutFixed(s.Hint[:])
	e.PutVarBytes(s.Signature)
}

func decodeDecoratedSignature(d *Decoder) (DecoratedSignature, error) {
	var s DecoratedSignature
	raw, err := d.Fixed(4)
	if err != nil {
		return s, err
	}
	copy(s.Hint[:], raw)
	s.Signature, err = d.VarBytes(64)
	return s, err
}
