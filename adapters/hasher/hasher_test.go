package hasher_test

import (
	"strings"
	"testing"

	"github.com/artpar/apigen/adapters/hasher"
	"golang.org/x/crypto/bcrypt"
)

func TestBcrypt_CostFallback(t *testing.T) {
	if got := hasher.NewBcrypt(1).Cost(); got != bcrypt.DefaultCost {
		t.Errorf("cost below minimum = %d, want %d", got, bcrypt.DefaultCost)
	}
	if got := hasher.NewBcrypt(100).Cost(); got != bcrypt.DefaultCost {
		t.Errorf("cost above maximum = %d, want %d", got, bcrypt.DefaultCost)
	}
	if got := hasher.NewBcrypt(bcrypt.MinCost).Cost(); got != bcrypt.MinCost {
		t.Errorf("valid cost = %d, want %d", got, bcrypt.MinCost)
	}
}

func TestBcrypt_HashAndCompare(t *testing.T) {
	h := hasher.NewBcrypt(bcrypt.MinCost)

	hash, err := h.Hash("s3cret")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("hash %q is not in bcrypt format", hash)
	}
	if !hasher.IsHash(hash) {
		t.Error("IsHash should recognise its own output")
	}
	if !h.Compare(hash, "s3cret") {
		t.Error("Compare should accept the original password")
	}
	if h.Compare(hash, "wrong") {
		t.Error("Compare should reject a different password")
	}

	again, _ := h.Hash("s3cret")
	if again == hash {
		t.Error("salted hashes of the same input should differ")
	}
}

func TestIsHash_Plaintext(t *testing.T) {
	for _, s := range []string{"", "password", "$2a$"} {
		if hasher.IsHash(s) {
			t.Errorf("IsHash(%q) = true", s)
		}
	}
}

func TestFake(t *testing.T) {
	var h hasher.Fake
	hash, _ := h.Hash("pw")
	if hash == "pw" {
		t.Error("fake hash should not equal the plaintext")
	}
	if !h.Compare(hash, "pw") || h.Compare(hash, "other") {
		t.Error("fake Compare should reverse Hash")
	}
}
