package password

import (
	"errors"
	"regexp"
	"testing"
)

var storedFormat = regexp.MustCompile(`^[0-9a-f]{32}:[0-9a-f]{128}$`)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()

	c, err := NewCodec(Config{})
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	return c
}

func TestHashAndVerify(t *testing.T) {
	c := newTestCodec(t)

	for _, p := range []string{"Abcdef1!", "", "pässwörd with spaces", "a:b:c"} {
		stored, err := c.Hash(p)
		if err != nil {
			t.Fatalf("Hash error: %v", err)
		}
		if !storedFormat.MatchString(stored) {
			t.Fatalf("unexpected stored format: %s", stored)
		}

		ok, err := c.Verify(p, stored)
		if err != nil {
			t.Fatalf("Verify error: %v", err)
		}
		if !ok {
			t.Fatalf("expected %q to verify against its own hash", p)
		}
	}
}

func TestVerifyWrongPassword(t *testing.T) {
	c := newTestCodec(t)

	stored, err := c.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := c.Verify("wrong-password", stored)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestHashSaltsDiffer(t *testing.T) {
	c := newTestCodec(t)

	first, err := c.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	second, err := c.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct stored pairs for the same plaintext")
	}
	if first[:32] == second[:32] {
		t.Fatal("expected distinct salts")
	}
}

func TestVerifyKnownVector(t *testing.T) {
	c := newTestCodec(t)

	// sha512("00112233445566778899aabbccddeeff" + "Abcdef1!")
	salt := "00112233445566778899aabbccddeeff"
	stored := salt + ":" + digest(salt, "Abcdef1!")

	ok, err := c.Verify("Abcdef1!", stored)
	if err != nil || !ok {
		t.Fatalf("expected known vector to verify, ok=%v err=%v", ok, err)
	}
}

func TestVerifyCorruptCredential(t *testing.T) {
	c := newTestCodec(t)

	cases := []string{
		"",
		"no-separator-here",
		":" + string(make([]byte, 128)),
		"zz112233445566778899aabbccddeeff:" + digest("x", "y"),
		"00112233445566778899aabbccddeeff:deadbeef",
		"00112233445566778899aabbccddeeff:" + digest("x", "y")[:127] + "g",
	}
	for _, stored := range cases {
		ok, err := c.Verify("anything", stored)
		if !errors.Is(err, ErrCorruptCredential) {
			t.Fatalf("expected ErrCorruptCredential for %q, got ok=%v err=%v", stored, ok, err)
		}
	}
}

func TestNewCodecRejectsShortSalt(t *testing.T) {
	if _, err := NewCodec(Config{SaltLength: 8}); err == nil {
		t.Fatal("expected short salt length to be rejected")
	}
}
