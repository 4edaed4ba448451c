package strkey

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

// Version bytes for the strkey address families the engine handles.
const (
	VersionAccount  byte = 6 << 3  // 'G' ed25519 account ID
	VersionMuxed    byte = 12 << 3 // 'M' muxed account
	VersionContract byte = 2 << 3  // 'C' contract address
	VersionSeed     byte = 18 << 3 // 'S' ed25519 secret seed
)

var (
	ErrInvalidChecksum = errors.New("strkey: invalid checksum")
	ErrInvalidVersion  = errors.New("strkey: unexpected version byte")
	ErrInvalidLength   = errors.New("strkey: invalid payload length")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// encode wraps payload with the version byte and CRC16-XModem checksum and
// base32-encodes the result.
func encode(version byte, payload []byte) string {
	raw := make([]byte, 0, len(payload)+3)
	raw = append(raw, version)
	raw = append(raw, payload...)
	raw = binary.LittleEndian.AppendUint16(raw, crc16(raw))
	return b32.EncodeToString(raw)
}

// decode reverses encode, checking the checksum and version byte.
func decode(version byte, s string) ([]byte, error) {
	raw, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("strkey: decode base32: %w", err)
	}
	if len(raw) < 3 {
		return nil, ErrInvalidLength
	}
	body, sum := raw[:len(raw)-2], binary.LittleEndian.Uint16(raw[len(raw)-2:])
	if crc16(body) != sum {
		return nil, ErrInvalidChecksum
	}
	if body[0] != version {
		return nil, ErrInvalidVersion
	}
	return body[1:], nil
}

// EncodeAccountID renders a 32-byte ed25519 public key as a G-address.
func EncodeAccountID(pub [32]byte) string {
	return encode(VersionAccount, pub[:])
}

// DecodeAccountID parses a G-address and verifies the payload is a valid
// point on the ed25519 curve.
func DecodeAccountID(addr string) ([32]byte, error) {
	var pub [32]byte
	payload, err := decode(VersionAccount, addr)
	if err != nil {
		return pub, err
	}
	if len(payload) != 32 {
		return pub, ErrInvalidLength
	}
	if _, err := new(edwards25519.Point).SetBytes(payload); err != nil {
		return pub, fmt.Errorf("strkey: not an ed25519 point: %w", err)
	}
	copy(pub[:], payload)
	return pub, nil
}

// EncodeMuxed renders an ed25519 key plus a 64-bit multiplex ID as an
// M-address.
func EncodeMuxed(pub [32]byte, id uint64) string {
	payload := make([]byte, 40)
	copy(payload, pub[:])
	binary.BigEndian.PutUint64(payload[32:], id)
	return encode(VersionMuxed, payload)
}

// DecodeMuxed parses an M-address into its inner ed25519 key and multiplex
// ID.
func DecodeMuxed(addr string) ([32]byte, uint64, error) {
	var pub [32]byte
	payload, err := decode(VersionMuxed, addr)
	if err != nil {
		return pub, 0, err
	}
	if len(payload) != 40 {
		return pub, 0, ErrInvalidLength
	}
	copy(pub[:], payload[:32])
	return pub, binary.BigEndian.Uint64(payload[32:]), nil
}

// EncodeContract renders a 32-byte contract hash as a C-address.
func EncodeContract(hash [32]byte) string {
	return encode(VersionContract, hash[:])
}

// DecodeContract parses a C-address into the 32-byte contract hash.
func DecodeContract(addr string) ([32]byte, error) {
	var hash [32]byte
	payload, err := decode(VersionContract, addr)
	if err != nil {
		return hash, err
	}
	if len(payload) != 32 {
		return hash, ErrInvalidLength
	}
	copy(hash[:], payload)
	return hash, nil
}

// DecodeSeed parses an S-seed into the 32-byte ed25519 private seed.
func DecodeSeed(seed string) ([32]byte, error) {
	var out [32]byte
	payload, err := decode(VersionSeed, seed)
	if err != nil {
		return out, err
	}
	if len(payload) != 32 {
		return out, ErrInvalidLength
	}
	copy(out[:], payload)
	return out, nil
}

// IsAccountID reports whether addr parses as a valid G-address.
func IsAccountID(addr string) bool {
	_, err := DecodeAccountID(addr)
	return err == nil
}

// IsMuxed reports whether addr parses as a valid M-address.
func IsMuxed(addr string) bool {
	_, _, err := DecodeMuxed(addr)
	return err == nil
}

// crc16 computes CRC16-XModem (poly 0x1021, zero init) over data.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
