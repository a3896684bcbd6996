package chain

import "testing"

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Address
	}{
		{name: "already canonical", in: "0x123abc", want: "0x123abc"},
		{name: "leading zero padding", in: "0x0123abc", want: "0x123abc"},
		{name: "heavy padding", in: "0x0000000123abc", want: "0x123abc"},
		{name: "uppercase hex", in: "0x0123ABC", want: "0x123abc"},
		{name: "missing prefix", in: "123abc", want: "0x123abc"},
		{name: "surrounding whitespace", in: "  0x123abc ", want: "0x123abc"},
		{name: "zero", in: "0x0", want: "0x0"},
		{name: "padded zero", in: "0x000", want: "0x0"},
		{name: "empty", in: "", want: "0x0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeAddress(tc.in); got != tc.want {
				t.Fatalf("NormalizeAddress(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestAddressEqualIgnoresPadding(t *testing.T) {
	if !Address("0x0123abc").Equal("0x123abc") {
		t.Fatal("expected padded and unpadded forms to compare equal")
	}
	if !Address("0x0123ABC").Equal("0x123abc") {
		t.Fatal("expected case difference to compare equal")
	}
	if Address("0x123abc").Equal("0x123abd") {
		t.Fatal("expected distinct addresses to compare unequal")
	}
}

func TestAddressIsZero(t *testing.T) {
	if !Address("0x000").IsZero() {
		t.Fatal("expected padded zero to be zero")
	}
	if Address("0x1").IsZero() {
		t.Fatal("expected non-zero address")
	}
}
