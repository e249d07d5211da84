package auth

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the access token payload shared by auth-service and its verifiers.
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type Header struct {
	Alg string
	Kid string
}

// NewClaims builds claims for userID valid for ttl from now.
func NewClaims(userID string, role Role, name string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		Role: string(role),
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// ParseHeader reads alg and kid without verifying the signature.
func ParseHeader(token string) (*Header, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, &Claims{})
	if err != nil {
		return nil, ErrInvalidToken
	}
	h := &Header{}
	if alg, ok := parsed.Header["alg"].(string); ok {
		h.Alg = alg
	}
	if kid, ok := parsed.Header["kid"].(string); ok {
		h.Kid = kid
	}
	return h, nil
}

func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	return parse(token, jwt.SigningMethodHS256.Alg(), func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
}

func SignRS256(claims Claims, key *rsa.PrivateKey, kid string) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	return tok.SignedString(key)
}

func VerifyRS256(token string, pubKey *rsa.PublicKey) (*Claims, error) {
	return parse(token, jwt.SigningMethodRS256.Alg(), func(*jwt.Token) (any, error) {
		return pubKey, nil
	})
}

func parse(token, alg string, keyFunc jwt.Keyfunc) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc,
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verifier checks HS256 tokens with a shared secret, and RS256 tokens through
// a JWKS client when one is configured.
type Verifier struct {
	Secret string
	JWKS   *JWKSClient
}

func (v Verifier) Verify(token string) (*Claims, error) {
	if v.JWKS != nil {
		header, err := ParseHeader(token)
		if err != nil {
			return nil, err
		}
		if header.Alg == jwt.SigningMethodRS256.Alg() && header.Kid != "" {
			pub, err := v.JWKS.Get(header.Kid)
			if err != nil {
				return nil, ErrInvalidToken
			}
			return VerifyRS256(token, pub)
		}
	}
	if v.Secret == "" {
		return nil, ErrInvalidToken
	}
	return ParseAndVerifyHS256(token, v.Secret)
}
