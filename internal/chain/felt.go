package chain

import (
	"math/big"
	"strings"

	flerrors "github.com/lyricsflip/lyricsflip-go/internal/errors"
)

// MaxShortStringLen is the character cap of a compact-encoded string field.
// The contract packs one byte per character into a single felt, which leaves
// room for 31 characters; longer values must be truncated before submission.
const MaxShortStringLen = 31

// DecodeShortString decodes a compact-encoded felt value (hex or decimal
// string form) into its ASCII text.
func DecodeShortString(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" || v == "0x0" || v == "0" {
		return "", nil
	}

	n := new(big.Int)
	var ok bool
	if strings.HasPrefix(strings.ToLower(v), "0x") {
		_, ok = n.SetString(v[2:], 16)
	} else {
		_, ok = n.SetString(v, 10)
	}
	if !ok {
		return "", flerrors.New(flerrors.CodeCardParse, "malformed felt value %q", v)
	}
	if n.Sign() < 0 {
		return "", flerrors.New(flerrors.CodeCardParse, "negative felt value %q", v)
	}

	raw := n.Bytes()
	if len(raw) > MaxShortStringLen {
		return "", flerrors.New(flerrors.CodeCardParse, "felt value longer than %d bytes", MaxShortStringLen)
	}
	for _, b := range raw {
		if b < 0x20 || b > 0x7e {
			return "", flerrors.New(flerrors.CodeCardParse, "non-printable byte 0x%02x in felt value", b)
		}
	}
	return string(raw), nil
}

// EncodeShortString encodes ASCII text into its compact felt hex form. The
// input is truncated to the field cap first; this is lossy by design and
// mirrors what must happen before any submission.
func EncodeShortString(s string) (string, error) {
	s = TruncateShortString(s)
	if s == "" {
		return "0x0", nil
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return "", flerrors.New(flerrors.CodeCardParse, "non-ASCII character at index %d", i)
		}
	}
	n := new(big.Int).SetBytes([]byte(s))
	return "0x" + n.Text(16), nil
}

// TruncateShortString caps text at the compact-encoding field limit.
func TruncateShortString(s string) string {
	if len(s) <= MaxShortStringLen {
		return s
	}
	return s[:MaxShortStringLen]
}
