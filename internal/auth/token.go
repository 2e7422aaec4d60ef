package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/velist/velist/internal/models"
)

// TokenManager signs and verifies the HS256 session and pending-2FA tokens.
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// GenerateSessionToken signs the identity claims of user. sessionID becomes the jti.
func (tm *TokenManager) GenerateSessionToken(user *models.SafeUser, sessionID string, ttl time.Duration) (string, time.Time, error) {
	now := tm.now()
	expiresAt := now.Add(ttl)

	claims := &models.TokenClaims{
		Type:  models.TokenTypeSession,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := tm.sign(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// GeneratePendingToken signs a short-lived token carrying only the user id.
func (tm *TokenManager) GeneratePendingToken(userID string, ttl time.Duration) (string, error) {
	now := tm.now()

	claims := &models.TokenClaims{
		Type: models.TokenTypePending2FA,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := tm.sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign pending token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature, expiry and token type.
func (tm *TokenManager) ValidateToken(tokenString, tokenType string) (*models.TokenClaims, error) {
	claims, err := tm.parse(tokenString, jwt.WithExpirationRequired(), jwt.WithTimeFunc(tm.now))
	if err != nil {
		return nil, err
	}
	if claims.Type != tokenType {
		return nil, fmt.Errorf("%w: unexpected token type %q", models.ErrInvalidToken, claims.Type)
	}
	return claims, nil
}

// DecodeSessionToken verifies the signature but ignores expiry. Logout uses it
// to find the session record of a token that may already have expired.
func (tm *TokenManager) DecodeSessionToken(tokenString string) (*models.TokenClaims, error) {
	claims, err := tm.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}
	if claims.Type != models.TokenTypeSession {
		return nil, fmt.Errorf("%w: unexpected token type %q", models.ErrInvalidToken, claims.Type)
	}
	return claims, nil
}

func (tm *TokenManager) sign(claims *models.TokenClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
}

func (tm *TokenManager) parse(tokenString string, opts ...jwt.ParserOption) (*models.TokenClaims, error) {
	if tokenString == "" {
		return nil, models.ErrInvalidToken
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	claims := &models.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", models.ErrInvalidToken)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, models.ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", models.ErrInvalidToken)
	}
	return claims, nil
}
