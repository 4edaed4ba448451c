package xdr

import (
	"fmt"

	"stellar-copy-engine/internal/strkey"
)

// SCVal discriminants for the value arms the engine reads or writes.
const (
	SCValBool      uint32 = 0
	SCValVoid      uint32 = 1
	SCValU32       uint32 = 3
	SCValI32       uint32 = 4
	SCValU64       uint32 = 5
	SCValI64       uint32 = 6
	SCValTimepoint uint32 = 7
	SCValDuration  uint32 = 8
	SCValU128      uint32 = 9
	SCValI128      uint32 = 10
	SCValBytes     uint32 = 13
	SCValString    uint32 = 14
	SCValSymbol    uint32 = 15
	SCValVec       uint32 = 16
	SCValMap       uint32 = 17
	SCValAddress   uint32 = 18
)

// SCAddress discriminants.
const (
	SCAddressAccount  uint32 = 0
	SCAddressContract uint32 = 1
)

// SCAddress is a contract-visible address: an ed25519 account or a contract
// hash.
type SCAddress struct {
	Type     uint32
	Account  [32]byte // when Type == SCAddressAccount
	Contract [32]byte // when Type == SCAddressContract
}

// SCAddressFromString parses a G- or C-strkey into an SCAddress.
func SCAddressFromString(addr string) (SCAddress, error) {
	if len(addr) > 0 && addr[0] == 'C' {
		hash, err := strkey.DecodeContract(addr)
		if err != nil {
			return SCAddress{}, err
		}
		return SCAddress{Type: SCAddressContract, Contract: hash}, nil
	}
	pub, err := strkey.DecodeAccountID(addr)
	if err != nil {
		return SCAddress{}, err
	}
	return SCAddress{Type: SCAddressAccount, Account: pub}, nil
}

// String renders the address back into strkey form.
func (a SCAddress) String() string {
	if a.Type == SCAddressContract {
		return strkey.EncodeContract(a.Contract)
	}
	return strkey.EncodeAccountID(a.Account)
}

func (a SCAddress) encode(e *Encoder) {
	e.PutUint32(a.Type)
	if a.Type == SCAddressContract {
		e.PutFixed(a.Contract[:])
	} else {
		// AccountID is PublicKey union, arm 0 = ed25519.
		e.PutUint32(0)
		e.PutFixed(a.Account[:])
	}
}

func decodeSCAddress(d *Decoder) (SCAddress, error) {
	typ, err := d.Uint32()
	if err != nil {
		return SCAddress{}, err
	}
	switch typ {
	case SCAddressAccount:
		keyType, err := d.Uint32()
		if err != nil {
			return SCAddress{}, err
		}
		if keyType != 0 {
			return SCAddress{}, fmt.Errorf("%w: public key type %d", ErrUnsupported, keyType)
		}
		raw, err := d.Fixed(32)
		if err != nil {
			return SCAddress{}, err
		}
		a := SCAddress{Type: SCAddressAccount}
		copy(a.Account[:], raw)
		return a, nil
	case SCAddressContract:
		raw, err := d.Fixed(32)
		if err != nil {
			return SCAddress{}, err
		}
		a := SCAddress{Type: SCAddressContract}
		copy(a.Contract[:], raw)
		return a, nil
	default:
		return SCAddress{}, fmt.Errorf("%w: sc address type %d", ErrUnsupported, typ)
	}
}

// SCVal is one contract argument value. Exactly one arm is meaningful for a
// given Type.
type SCVal struct {
	Type    uint32
	Bool    bool
	U32     uint32
	I32     int32
	U64     uint64
	I64     int64
	U128    UInt128
	I128    Int128
	Bytes   []byte
	Str     string // string and symbol arms
	Vec     []SCVal
	Map     []SCMapEntry
	Address SCAddress
}

// SCMapEntry is one key/value pair of an SCV_MAP value.
type SCMapEntry struct {
	Key SCVal
	Val SCVal
}

// Constructors for the arms the rewriter emits.

func SCBool(v bool) SCVal      { return SCVal{Type: SCValBool, Bool: v} }
func SCU32(v uint32) SCVal     { return SCVal{Type: SCValU32, U32: v} }
func SCU64(v uint64) SCVal     { return SCVal{Type: SCValU64, U64: v} }
func SCU128(v UInt128) SCVal   { return SCVal{Type: SCValU128, U128: v} }
func SCI128(v Int128) SCVal    { return SCVal{Type: SCValI128, I128: v} }
func SCSymbol(s string) SCVal  { return SCVal{Type: SCValSymbol, Str: s} }
func SCVec(vals []SCVal) SCVal { return SCVal{Type: SCValVec, Vec: vals} }
func SCAddr(a SCAddress) SCVal { return SCVal{Type: SCValAddress, Address: a} }

// Encode appends the value's XDR form.
func (v SCVal) Encode(e *Encoder) error {
	e.PutUint32(v.Type)
	switch v.Type {
	case SCValBool:
		e.PutBool(v.Bool)
	case SCValVoid:
	case SCValU32:
		e.PutUint32(v.U32)
	case SCValI32:
		e.PutInt32(v.I32)
	case SCValU64, SCValTimepoint, SCValDuration:
		e.PutUint64(v.U64)
	case SCValI64:
		e.PutInt64(v.I64)
	case SCValU128:
		e.PutUint64(v.U128.Hi)
		e.PutUint64(v.U128.Lo)
	case SCValI128:
		e.PutInt64(v.I128.Hi)
		e.PutUint64(v.I128.Lo)
	case SCValBytes:
		e.PutVarBytes(v.Bytes)
	case SCValString:
		e.PutString(v.Str)
	case SCValSymbol:
		e.PutString(v.Str)
	case SCValVec:
		// SCVec is optional in the schema; present = 1.
		e.PutUint32(1)
		e.PutUint32(uint32(len(v.Vec)))
		for _, item := range v.Vec {
			if err := item.Encode(e); err != nil {
				return err
			}
		}
	case SCValMap:
		e.PutUint32(1)
		e.PutUint32(uint32(len(v.Map)))
		for _, entry := range v.Map {
			if err := entry.Key.Encode(e); err != nil {
				return err
			}
			if err := entry.Val.Encode(e); err != nil {
				return err
			}
		}
	case SCValAddress:
		v.Address.encode(e)
	default:
		return fmt.Errorf("%w: scval type %d", ErrUnsupported, v.Type)
	}
	return nil
}

// DecodeSCVal reads one SCVal, recursing into vectors and maps.
func DecodeSCVal(d *Decoder) (SCVal, error) {
	typ, err := d.Uint32()
	if err != nil {
		return SCVal{}, err
	}
	v := SCVal{Type: typ}
	switch typ {
	case SCValBool:
		v.Bool, err = d.Bool()
	case SCValVoid:
	case SCValU32:
		v.U32, err = d.Uint32()
	case SCValI32:
		v.I32, err = d.Int32()
	case SCValU64, SCValTimepoint, SCValDuration:
		v.U64, err = d.Uint64()
	case SCValI64:
		v.I64, err = d.Int64()
	case SCValU128:
		if v.U128.Hi, err = d.Uint64(); err != nil {
			return SCVal{}, err
		}
		v.U128.Lo, err = d.Uint64()
	case SCValI128:
		if v.I128.Hi, err = d.Int64(); err != nil {
			return SCVal{}, err
		}
		v.I128.Lo, err = d.Uint64()
	case SCValBytes:
		v.Bytes, err = d.VarBytes(0)
	case SCValString:
		v.Str, err = d.String(0)
	case SCValSymbol:
		v.Str, err = d.String(32)
	case SCValVec:
		present, perr := d.Uint32()
		if perr != nil {
			return SCVal{}, perr
		}
		if present == 0 {
			break
		}
		n, nerr := d.Uint32()
		if nerr != nil {
			return SCVal{}, nerr
		}
		v.Vec = make([]SCVal, 0, n)
		for i := uint32(0); i < n; i++ {
			item, ierr := DecodeSCVal(d)
			if ierr != nil {
				return SCVal{}, ierr
			}
			v.Vec = append(v.Vec, item)
		}
	case SCValMap:
		present, perr := d.Uint32()
		if perr != nil {
			return SCVal{}, perr
		}
		if present == 0 {
			break
		}
		n, nerr := d.Uint32()
		if nerr != nil {
			return SCVal{}, nerr
		}
		v.Map = make([]SCMapEntry, 0, n)
		for i := uint32(0); i < n; i++ {
			key, kerr := DecodeSCVal(d)
			if kerr != nil {
				return SCVal{}, kerr
			}
			val, verr := DecodeSCVal(d)
			if verr != nil {
				return SCVal{}, verr
			}
			v.Map = append(v.Map, SCMapEntry{Key: key, Val: val})
		}
	case SCValAddress:
		v.Address, err = decodeSCAddress(d)
	default:
		return SCVal{}, fmt.Errorf("%w: scval type %d", ErrUnsupported, typ)
	}
	if err != nil {
		return SCVal{}, err
	}
	return v, nil
}
