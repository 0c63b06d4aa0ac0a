package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Используется SigningMethodHS256
type JWTVerifier struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
	now       func() time.Time
}

func NewJWTVerifier(secret, issuer string, clockSkew time.Duration) *JWTVerifier {
	return &JWTVerifier{
		secret:    []byte(secret),
		issuer:    issuer,
		clockSkew: clockSkew,
		now:       time.Now,
	}
}

// Claims carries the user id in the userId claim; sub is accepted as a fallback.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// Sign выпускает HS256 токен с userId и exp=now+ttl (ttl<=0: без exp).
// Сервис токены не выдаёт, Sign нужен dev-окружению и тестам.
func (v *JWTVerifier) Sign(userID string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   v.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify checks signature, algorithm, issuer and exp/nbf (with clock skew)
// and returns the user id the token was issued for.
func (v *JWTVerifier) Verify(tokenStr string) (string, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return "", ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return "", ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "", ErrInvalidIssuer
	default:
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return "", ErrInvalidSubject
	}
	return id, nil
}
