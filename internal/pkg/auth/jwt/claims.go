package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JWT claims carried by a Buzz session credential.
type Payload struct {
	// StandardClaims carries Exp, Iat and Iss, used for validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the account identifier, shared with the user document id.
	ID string `json:"id"`

	// Email is the address the account signed up with.
	Email string `json:"email"`
}
