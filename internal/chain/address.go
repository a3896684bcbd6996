package chain

import "strings"

// Address is an account address in canonical form: lowercase hex, 0x prefix,
// no leading zeros. The indexer and the contract disagree on zero padding, so
// every attribution check goes through normalization first.
type Address string

// ZeroAddress is the canonical form of an absent address.
const ZeroAddress Address = "0x0"

// NormalizeAddress canonicalizes an address string. Inputs may carry mixed
// case, an optional 0x prefix, and any amount of leading-zero padding.
func NormalizeAddress(s string) Address {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return ZeroAddress
	}
	return Address("0x" + s)
}

// Normalize returns the canonical form of a.
func (a Address) Normalize() Address {
	return NormalizeAddress(string(a))
}

// Equal reports whether two addresses denote the same account, ignoring
// case and zero-padding differences.
func (a Address) Equal(b Address) bool {
	return a.Normalize() == b.Normalize()
}

// IsZero reports whether the address is absent or the zero account.
func (a Address) IsZero() bool {
	return a.Normalize() == ZeroAddress
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return string(a)
}
