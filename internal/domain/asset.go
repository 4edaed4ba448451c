package domain

import "fmt"

// Asset identifies a Stellar asset. The zero-value code marks the native
// asset (XLM); otherwise Code is a 1..12 character alphanumeric code and
// Issuer the issuing account's G-address.
type Asset struct {
	Code   string // empty for native
	Issuer string // empty for native
}

// NativeAsset returns the native (XLM) asset.
func NativeAsset() Asset {
	return Asset{}
}

// IsNative reports whether a is the native asset.
func (a Asset) IsNative() bool {
	return a.Code == "" && a.Issuer == ""
}

// String returns "native" or "CODE:ISSUER".
func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return fmt.Sprintf("%s:%s", a.Code, a.Issuer)
}

// Equal reports whether two assets are the same asset.
func (a Asset) Equal(b Asset) bool {
	return a.Code == b.Code && a.Issuer == b.Issuer
}
