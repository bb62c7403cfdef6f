package robokassa

import (
	"strings"
	"testing"
)

func newTestSigner() *Signer {
	return NewSigner("shop", "pass1", "pass2")
}

func TestSign_KnownVector(t *testing.T) {
	s := newTestSigner()

	got := s.Sign("20000.000000", 1001, UserTags(42))
	if want := "13ca8ce64077676e5b1e8eb679b337c3"; got != want {
		t.Fatalf("Sign() = %s, want %s", got, want)
	}

	if got := s.Sign("20000.000000", 1001, nil); got != "3db66fa81596c810d823ed82241defce" {
		t.Fatalf("Sign() without tags = %s", got)
	}
}

func TestSign_TagOrderIsAlphabetical(t *testing.T) {
	s := newTestSigner()
	a := s.Sign("1.000000", 5, map[string]string{"Shp_user_id": "1", "Shp_interface": "link"})
	b := s.Sign("1.000000", 5, map[string]string{"Shp_interface": "link", "Shp_user_id": "1"})
	if a != b {
		t.Fatalf("signature depends on map order: %s != %s", a, b)
	}
}

func TestVerify(t *testing.T) {
	s := newTestSigner()
	const valid = "90f3911c3b76f87a50acdf95be769ebd"

	tests := []struct {
		name                       string
		outSum, invID, sig, userID string
		want                       bool
	}{
		{"valid lowercase", "20000.000000", "1001", valid, "42", true},
		{"valid uppercase", "20000.000000", "1001", strings.ToUpper(valid), "42", true},
		{"other user", "20000.000000", "1001", valid, "43", false},
		{"other amount formatting", "20000.00", "1001", valid, "42", false},
		{"other invoice", "20000.000000", "1002", valid, "42", false},
		{"empty signature", "20000.000000", "1001", "", "42", false},
		{"empty user", "20000.000000", "1001", valid, "", false},
		{"empty out sum", "", "1001", valid, "42", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Verify(tt.outSum, tt.invID, tt.sig, tt.userID); got != tt.want {
				t.Fatalf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerify_SingleCharMutationFails(t *testing.T) {
	s := newTestSigner()
	fields := [4]string{"20000.000000", "1001", "90f3911c3b76f87a50acdf95be769ebd", "42"}

	for i := range fields {
		for pos := 0; pos < len(fields[i]); pos++ {
			mutated := fields
			b := []byte(mutated[i])
			if b[pos] == 'x' {
				b[pos] = 'y'
			} else {
				b[pos] = 'x'
			}
			mutated[i] = string(b)
			if s.Verify(mutated[0], mutated[1], mutated[2], mutated[3]) {
				t.Fatalf("mutation of field %d at %d still verifies: %v", i, pos, mutated)
			}
		}
	}
}

func TestVerify_Deterministic(t *testing.T) {
	s := newTestSigner()
	for i := 0; i < 3; i++ {
		if !s.Verify("20000.000000", "1001", "90f3911c3b76f87a50acdf95be769ebd", "42") {
			t.Fatalf("run %d: expected valid signature", i)
		}
	}
}

func TestFormatOutSum(t *testing.T) {
	tests := map[float64]string{
		20000:    "20000.000000",
		19.5:     "19.500000",
		0.123456: "0.123456",
	}
	for in, want := range tests {
		if got := FormatOutSum(in); got != want {
			t.Fatalf("FormatOutSum(%v) = %s, want %s", in, got, want)
		}
	}
}
