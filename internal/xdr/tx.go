package xdr

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Envelope type discriminants.
const (
	EnvelopeTypeTxV0      uint32 = 0
	EnvelopeTypeTx        uint32 = 2
	EnvelopeTypeTxFeeBump uint32 = 5
)

// Network passphrases identifying the chain a signature is valid on.
const (
	NetworkPublic  = "Public Global Stellar Network ; September 2015"
	NetworkTestnet = "Test SDF Network ; September 2015"
)

// Transaction is a v1 Stellar transaction body.
type Transaction struct {
	SourceAccount MuxedAccount
	Fee           uint32 // total fee in stroops
	SeqNum        int64
	Cond          Preconditions
	Memo          Memo
	Operations    []Operation
	// SorobanDataRaw is the raw SorobanTransactionData blob (ext arm 1),
	// spliced verbatim from the simulation response.
	SorobanDataRaw []byte
}

// TransactionEnvelope is a v1 envelope: a transaction plus its signatures.
type TransactionEnvelope struct {
	Tx         Transaction
	Signatures []DecoratedSignature
}

func (t *Transaction) encodeBody(e *Encoder) error {
	t.SourceAccount.encode(e)
	e.PutUint32(t.Fee)
	e.PutInt64(t.SeqNum)
	t.Cond.encode(e)
	t.Memo.encode(e)
	e.PutUint32(uint32(len(t.Operations)))
	for _, op := range t.Operations {
		if err := op.encode(e); err != nil {
			return err
		}
	}
	if len(t.SorobanDataRaw) > 0 {
		e.PutUint32(1)
		e.PutRaw(t.SorobanDataRaw)
	} else {
		e.PutUint32(0)
	}
	return nil
}

// Hash returns the transaction hash signed by all parties: the SHA-256 of
// the network ID, the v1 envelope discriminant and the transaction body.
func (t *Transaction) Hash(networkPassphrase string) ([32]byte, error) {
	networkID := sha256.Sum256([]byte(networkPassphrase))
	var e Encoder
	e.PutRaw(networkID[:])
	e.PutUint32(EnvelopeTypeTx)
	if err := t.encodeBody(&e); err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(e.Bytes()), nil
}

// EncodeBase64 renders the envelope in the base64 form Horizon accepts.
func (env *TransactionEnvelope) EncodeBase64() (string, error) {
	var e Encoder
	e.PutUint32(EnvelopeTypeTx)
	if err := env.Tx.encodeBody(&e); err != nil {
		return "", err
	}
	e.PutUint32(uint32(len(env.Signatures)))
	for _, sig := range env.Signatures {
		sig.encode(&e)
	}
	return base64.StdEncoding.EncodeToString(e.Bytes()), nil
}

// DecodeEnvelopeBase64 parses a base64 v1 transaction envelope. V0 and
// fee-bump envelopes return ErrUnsupported.
func DecodeEnvelopeBase64(s string) (*TransactionEnvelope, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("xdr: decode envelope base64: %w", err)
	}
	d := NewDecoder(raw)
	envType, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if envType != EnvelopeTypeTx {
		return nil, fmt.Errorf("%w: envelope type %d", ErrUnsupported, envType)
	}
	env := &TransactionEnvelope{}
	if err := decodeTransaction(d, &env.Tx); err != nil {
		return nil, err
	}
	nSigs, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if nSigs > 20 {
		return nil, fmt.Errorf("xdr: %d signatures exceeds limit", nSigs)
	}
	for i := uint32(0); i < nSigs; i++ {
		sig, err := decodeDecoratedSignature(d)
		if err != nil {
			return nil, err
		}
		env.Signatures = append(env.Signatures, sig)
	}
	return env, nil
}

func decodeTransaction(d *Decoder, t *Transaction) error {
	var err error
	if t.SourceAccount, err = decodeMuxedAccount(d); err != nil {
		return err
	}
	if t.Fee, err = d.Uint32(); err != nil {
		return err
	}
	if t.SeqNum, err = d.Int64(); err != nil {
		return err
	}
	if t.Cond, err = decodePreconditions(d); err != nil {
		return err
	}
	if t.Memo, err = decodeMemo(d); err != nil {
		return err
	}
	nOps, err := d.Uint32()
	if err != nil {
		return err
	}
	if nOps > 100 {
		return fmt.Errorf("xdr: %d operations exceeds limit", nOps)
	}
	for i := uint32(0); i < nOps; i++ {
		op, err := decodeOperation(d)
		if err != nil {
			return err
		}
		t.Operations = append(t.Operations, op)
	}
	ext, err := d.Uint32()
	if err != nil {
		return err
	}
	switch ext {
	case 0:
	case 1:
		start := d.Offset()
		if err := skipSorobanTransactionData(d); err != nil {
			return err
		}
		t.SorobanDataRaw = d.Raw(start)
	default:
		return fmt.Errorf("%w: transaction ext %d", ErrUnsupported, ext)
	}
	return nil
}

// skipSorobanTransactionData walks a SorobanTransactionData blob so its raw
// span can be captured without modeling the resource types.
func skipSorobanTransactionData(d *Decoder) error {
	ext, err := d.Uint32()
	if err != nil {
		return err
	}
	switch ext {
	case 0:
	case 1:
		// Archived entry indexes.
		n, err := d.Uint32()
		if err != nil {
			return err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := d.Uint32(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: soroban data ext %d", ErrUnsupported, ext)
	}
	// Footprint: read-only and read-write ledger key vectors.
	for i := 0; i < 2; i++ {
		n, err := d.Uint32()
		if err != nil {
			return err
		}
		for j := uint32(0); j < n; j++ {
			if err := skipLedgerKey(d); err != nil {
				return err
			}
		}
	}
	// Instructions, read bytes, write bytes.
	for i := 0; i < 3; i++ {
		if _, err := d.Uint32(); err != nil {
			return err
		}
	}
	// Resource fee.
	_, err = d.Int64()
	return err
}

func skipLedgerKey(d *Decoder) error {
	typ, err := d.Uint32()
	if err != nil {
		return err
	}
	skipAccountID := func() error {
		keyType, err := d.Uint32()
		if err != nil {
			return err
		}
		if keyType != 0 {
			return fmt.Errorf("%w: account key type %d", ErrUnsupported, keyType)
		}
		_, err = d.Fixed(32)
		return err
	}
	switch typ {
	case 0: // account
		return skipAccountID()
	case 1: // trustline
		if err := skipAccountID(); err != nil {
			return err
		}
		_, err := decodeAsset(d)
		return err
	case 6: // contract data
		if _, err := decodeSCAddress(d); err != nil {
			return err
		}
		if _, err := DecodeSCVal(d); err != nil {
			return err
		}
		_, err := d.Uint32() // durability
		return err
	case 7, 9: // contract code, ttl
		_, err := d.Fixed(32)
		return err
	default:
		return fmt.Errorf("%w: ledger key type %d", ErrUnsupported, typ)
	}
}
