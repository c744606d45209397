package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// DefaultTTL is the session credential lifetime when none is configured.
	DefaultTTL = time.Hour

	TokenIssuer = "Buzz-Server"
)

var (
	ErrSigningMethod = errors.New("jwt: unexpected signing method")
	ErrInvalidToken  = errors.New("jwt: invalid token")
	ErrWrongIssuer   = errors.New("jwt: token issued by another service")
)

// GenerateToken signs a credential for payload that expires ttl from now.
// The returned instant is truncated to the second, as encoded in the token.
func GenerateToken(payload *Payload, secretKey string, ttl time.Duration) (string, time.Time, error) {
	issuedAt := time.Now()
	expiresAt := time.Unix(issuedAt.Add(ttl).Unix(), 0)

	payload.StandardClaims = jwt.StandardClaims{
		Subject:   payload.ID,
		Issuer:    TokenIssuer,
		IssuedAt:  issuedAt.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString([]byte(secretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func hmacKey(secretKey string) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrSigningMethod
		}
		return []byte(secretKey), nil
	}
}

// ParseToken verifies signature, expiry and issuer and returns the claims.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	payload := &Payload{}
	token, err := jwt.ParseWithClaims(tokenString, payload, hmacKey(secretKey))
	switch {
	case err != nil:
		return nil, err
	case !token.Valid:
		return nil, ErrInvalidToken
	case !payload.VerifyIssuer(TokenIssuer, true):
		return nil, ErrWrongIssuer
	}
	return payload, nil
}

// IsExpired reports whether err from ParseToken means the token was well formed but expired.
func IsExpired(err error) bool {
	var ve *jwt.ValidationError
	return errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0
}

// ExpiresAtTime returns the expiry instant of the payload.
func (p *Payload) ExpiresAtTime() time.Time {
	return time.Unix(p.ExpiresAt, 0)
}
