package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

// FuzzJWTParseReset feeds arbitrary strings to the reset token parser.
// Invalid input must be rejected without panicking.
func FuzzJWTParseReset(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	mgr, err := NewManager(Config{
		TTL:           15 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "fuzz-test",
		Leeway:        30 * time.Second,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub},
	})
	if err != nil {
		f.Fatal(err)
	}

	now := time.Now()
	validToken, err := mgr.CreateReset("whiskers", "rid", now)
	if err != nil {
		f.Fatal(err)
	}

	f.Add(validToken)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1c3IiOiJ4In0.")
	f.Add(validToken + "x")

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := mgr.ParseReset(token, now)
		if err != nil {
			return
		}
		if claims.Username == "" || claims.ResetID() == "" {
			t.Fatalf("accepted token without username or reset id: %q", token)
		}
	})
}
