// Package tokens signs and verifies access tokens for auth-service.
package tokens

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/physiobook/physiobook/libs/auth"
)

var (
	ErrRotationUnsupported = errors.New("rotation not supported")
	ErrUnknownKid          = errors.New("unknown kid")
)

type Signer interface {
	Sign(claims auth.Claims) (string, error)
	Verify(token string) (*auth.Claims, error)
	JWKS() auth.JWKSet
	CanRotate() bool
	SetActiveKid(kid string) error
	RotateKey() string
}

type hs256Signer struct {
	secret string
}

func NewHS256Signer(secret string) Signer {
	return &hs256Signer{secret: secret}
}

func (s *hs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignHS256(claims, s.secret)
}

func (s *hs256Signer) Verify(token string) (*auth.Claims, error) {
	return auth.ParseAndVerifyHS256(token, s.secret)
}

func (s *hs256Signer) JWKS() auth.JWKSet         { return auth.JWKSet{} }
func (s *hs256Signer) CanRotate() bool           { return false }
func (s *hs256Signer) SetActiveKid(string) error { return ErrRotationUnsupported }
func (s *hs256Signer) RotateKey() string         { return "" }

type rs256Signer struct {
	privateKey *rsa.PrivateKey
	kid        string
}

func NewRS256Signer(pemBytes []byte, kid string) (Signer, error) {
	key, err := parseRSAPrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	if kid == "" {
		kid = auth.KeyID(&key.PublicKey)
	}
	return &rs256Signer{privateKey: key, kid: kid}, nil
}

func (s *rs256Signer) Sign(claims auth.Claims) (string, error) {
	return auth.SignRS256(claims, s.privateKey, s.kid)
}

func (s *rs256Signer) Verify(token string) (*auth.Claims, error) {
	return auth.VerifyRS256(token, &s.privateKey.PublicKey)
}

func (s *rs256Signer) JWKS() auth.JWKSet {
	return auth.JWKSet{Keys: []auth.JWK{auth.PublicJWK(&s.privateKey.PublicKey, s.kid)}}
}

func (s *rs256Signer) CanRotate() bool           { return false }
func (s *rs256Signer) SetActiveKid(string) error { return ErrRotationUnsupported }
func (s *rs256Signer) RotateKey() string         { return "" }

// RotatingSigner holds several RS256 keys. It signs with the active one and
// verifies with whichever key the token's kid names.
type RotatingSigner struct {
	mu        sync.RWMutex
	activeKid string
	keys      map[string]*rs256Signer
	rotateKey string
}

// ParseKeySet reads concatenated PEM private keys, keyed by derived kid.
func ParseKeySet(pemBlobs string) (map[string]*rsa.PrivateKey, error) {
	keys := map[string]*rsa.PrivateKey{}
	for _, block := range splitPEMBlocks(pemBlobs) {
		key, err := parseRSAPrivateKey([]byte(block))
		if err != nil {
			return nil, err
		}
		keys[auth.KeyID(&key.PublicKey)] = key
	}
	if len(keys) == 0 {
		return nil, errors.New("no valid rsa keys found")
	}
	return keys, nil
}

func NewRotatingSigner(keys map[string]*rsa.PrivateKey, activeKid, rotateKey string) (*RotatingSigner, error) {
	s := &RotatingSigner{keys: map[string]*rs256Signer{}, rotateKey: rotateKey}
	for kid, key := range keys {
		if kid == "" || key == nil {
			continue
		}
		s.keys[kid] = &rs256Signer{privateKey: key, kid: kid}
	}
	if len(s.keys) == 0 {
		return nil, errors.New("no keys provided")
	}
	if activeKid == "" {
		kids := make([]string, 0, len(s.keys))
		for kid := range s.keys {
			kids = append(kids, kid)
		}
		sort.Strings(kids)
		activeKid = kids[0]
	}
	if s.keys[activeKid] == nil {
		return nil, errors.New("active kid not found")
	}
	s.activeKid = activeKid
	return s, nil
}

func (s *RotatingSigner) Sign(claims auth.Claims) (string, error) {
	s.mu.RLock()
	key := s.keys[s.activeKid]
	s.mu.RUnlock()
	return key.Sign(claims)
}

func (s *RotatingSigner) Verify(token string) (*auth.Claims, error) {
	header, err := auth.ParseHeader(token)
	if err != nil {
		return nil, err
	}
	key := s.keys[header.Kid]
	if key == nil {
		return nil, auth.ErrInvalidToken
	}
	return key.Verify(token)
}

func (s *RotatingSigner) JWKS() auth.JWKSet {
	kids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	set := auth.JWKSet{Keys: make([]auth.JWK, 0, len(kids))}
	for _, kid := range kids {
		set.Keys = append(set.Keys, s.keys[kid].JWKS().Keys...)
	}
	return set
}

func (s *RotatingSigner) ActiveKid() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeKid
}

func (s *RotatingSigner) CanRotate() bool { return true }

func (s *RotatingSigner) SetActiveKid(kid string) error {
	if s.keys[kid] == nil {
		return ErrUnknownKid
	}
	s.mu.Lock()
	s.activeKid = kid
	s.mu.Unlock()
	return nil
}

func (s *RotatingSigner) RotateKey() string { return s.rotateKey }

func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
	}
	return nil, errors.New("unsupported private key")
}

func splitPEMBlocks(raw string) []string {
	var blocks []string
	var current strings.Builder
	inBlock := false
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "-----BEGIN ") {
			inBlock = true
			current.Reset()
		}
		if inBlock {
			current.WriteString(line)
			current.WriteString("\n")
		}
		if strings.HasPrefix(line, "-----END ") && inBlock {
			inBlock = false
			blocks = append(blocks, current.String())
		}
	}
	return blocks
}
