package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const stateTTL = 10 * time.Minute

// StateSigner issues short-lived signed OAuth state values so the callback
// can be tied back to the profile that started the flow.
type StateSigner struct {
	secret []byte
	now    func() time.Time
}

func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{secret: []byte(secret), now: time.Now}
}

type stateClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Sign returns a state token for profileID bound to purpose.
func (s *StateSigner) Sign(profileID, purpose string) (string, error) {
	now := s.now()
	claims := stateClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profileID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// Verify returns the profile ID a state was signed for.
func (s *StateSigner) Verify(state, purpose string) (string, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("invalid state: %w", err)
	}
	if claims.Purpose != purpose || claims.Subject == "" {
		return "", fmt.Errorf("invalid state: wrong purpose")
	}
	return claims.Subject, nil
}
