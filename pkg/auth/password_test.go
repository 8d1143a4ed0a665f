package auth

import (
	"strings"
	"testing"
)

func TestHashPasswordAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("TestPassword123!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if parts := strings.Split(hash, ":"); len(parts) != 2 {
		t.Fatalf("expected salt:hash encoding, got %q", hash)
	}
	if !CheckPassword("TestPassword123!", hash) {
		t.Fatalf("expected password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected password check to fail")
	}
}

func TestHashPasswordSaltsAreRandom(t *testing.T) {
	first, err := HashPassword("TestPassword123!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	second, err := HashPassword("TestPassword123!")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct hashes for the same password")
	}
	if !CheckPassword("TestPassword123!", first) || !CheckPassword("TestPassword123!", second) {
		t.Fatalf("expected both hashes to verify")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Fatalf("expected empty password to fail")
	}
	if _, err := HashPassword("   "); err == nil {
		t.Fatalf("expected whitespace password to fail")
	}
}

func TestCheckPasswordMalformedStored(t *testing.T) {
	for _, stored := range []string{"", "nocolon", "a:b:c", "!!!:???", "dmFsaWQ=:notbase64!!"} {
		if CheckPassword("anything", stored) {
			t.Fatalf("expected malformed stored hash %q to fail verification", stored)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("Str0ng#Password!"); err != nil {
		t.Fatalf("expected valid password, got: %v", err)
	}
	if err := ValidatePassword("Sh0rt!A"); err == nil {
		t.Fatalf("expected short password to fail")
	}
	if err := ValidatePassword("alllowercase123!"); err == nil {
		t.Fatalf("expected missing uppercase to fail")
	}
	if err := ValidatePassword("ALLUPPERCASE123!"); err == nil {
		t.Fatalf("expected missing lowercase to fail")
	}
	if err := ValidatePassword("NoDigitsInHere!"); err == nil {
		t.Fatalf("expected missing digits to fail")
	}
	if err := ValidatePassword("NoSpecials1234x"); err == nil {
		t.Fatalf("expected missing special chars to fail")
	}
}
