package tokens

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/physiobook/physiobook/libs/auth"
)

func rsaPEM(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return string(block), key
}

func TestHS256RoundTrip(t *testing.T) {
	s := NewHS256Signer("secret")
	token, err := s.Sign(auth.NewClaims("u-1", auth.RoleAdmin, "Ada", time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := s.Verify(token)
	if err != nil || claims.Subject != "u-1" || claims.Role != string(auth.RoleAdmin) {
		t.Fatalf("unexpected claims %+v (%v)", claims, err)
	}
	if len(s.JWKS().Keys) != 0 {
		t.Fatal("HS256 must not publish keys")
	}
	if err := NewHS256Signer("other").SetActiveKid("x"); !errors.Is(err, ErrRotationUnsupported) {
		t.Fatalf("expected ErrRotationUnsupported, got %v", err)
	}
}

func TestRS256VerifiesThroughJWKS(t *testing.T) {
	pemKey, _ := rsaPEM(t)
	s, err := NewRS256Signer([]byte(pemKey), "")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	token, err := s.Sign(auth.NewClaims("u-2", auth.RolePhysiotherapist, "", time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	set := s.JWKS()
	if len(set.Keys) != 1 {
		t.Fatalf("expected one published key, got %d", len(set.Keys))
	}
	pub, err := set.Keys[0].PublicKey()
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	claims, err := auth.VerifyRS256(token, pub)
	if err != nil || claims.Subject != "u-2" {
		t.Fatalf("verify through jwks: %+v (%v)", claims, err)
	}
}

func TestRotatingSigner(t *testing.T) {
	pemA, _ := rsaPEM(t)
	pemB, _ := rsaPEM(t)
	keys, err := ParseKeySet(pemA + pemB)
	if err != nil || len(keys) != 2 {
		t.Fatalf("parse key set: %d keys (%v)", len(keys), err)
	}

	s, err := NewRotatingSigner(keys, "", "rotate-me")
	if err != nil {
		t.Fatalf("new rotating signer: %v", err)
	}
	first := s.ActiveKid()
	oldToken, err := s.Sign(auth.NewClaims("u-3", auth.RoleAdmin, "", time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	var next string
	for kid := range keys {
		if kid != first {
			next = kid
		}
	}
	if err := s.SetActiveKid(next); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := s.SetActiveKid("missing"); !errors.Is(err, ErrUnknownKid) {
		t.Fatalf("expected ErrUnknownKid, got %v", err)
	}

	if _, err := s.Verify(oldToken); err != nil {
		t.Fatalf("token from the previous key must still verify: %v", err)
	}
	newToken, _ := s.Sign(auth.NewClaims("u-3", auth.RoleAdmin, "", time.Minute))
	header, err := auth.ParseHeader(newToken)
	if err != nil || header.Kid != next {
		t.Fatalf("expected kid %s, got %+v (%v)", next, header, err)
	}
	if len(s.JWKS().Keys) != 2 {
		t.Fatal("all keys must be published")
	}
}
