package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the access token payload issued by the account service.
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
