package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is what a verified citizen token proves.
type Identity struct {
	Mobile       string `json:"mobile"`
	Last4Aadhaar string `json:"last4Aadhaar"`
}

type Claims struct {
	Mobile       string `json:"mobile"`
	Last4Aadhaar string `json:"last4Aadhaar"`
	jwt.StandardClaims
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *TokenIssuer) Issue(id Identity) (string, error) {
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Mobile:       id.Mobile,
		Last4Aadhaar: id.Last4Aadhaar,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: now.Add(t.ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate checks signature and expiry and returns the carried identity.
func (t *TokenIssuer) Validate(raw string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Mobile == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{Mobile: claims.Mobile, Last4Aadhaar: claims.Last4Aadhaar}, nil
}
